// Пакет model — доменные типы mediaserve.
// Все структуры явные и типизированные: принципал, корень, разрешённая
// локация и элемент листинга собираются только через этот пакет,
// а не ad hoc на месте вызова.
package model

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Role — роль пользователя.
type Role string

const (
	// RoleAdmin — администратор: видит все корни, работает от корня напрямую.
	RoleAdmin Role = "admin"
	// RoleUser — обычный пользователь: ограничен поддиректорией <root>/<username>.
	RoleUser Role = "user"
)

// Action — тип действия в журнале активности.
type Action string

const (
	ActionUpload Action = "upload"
	ActionDelete Action = "delete"
	ActionRename Action = "rename"
	ActionMove   Action = "move"
	ActionCopy   Action = "copy"
	ActionMkdir  Action = "mkdir"
)

// Principal — аутентифицированный субъект запроса.
// Формируется один раз на запрос из AuthProvider и никогда
// не принимается из клиентского ввода.
type Principal struct {
	Username string
	IsAdmin  bool
}

// MediaRoot — настроенный администратором корневой каталог.
type MediaRoot struct {
	// Path — абсолютный путь каталога на диске.
	Path string `json:"path"`
	// AllowedUsers — username'ы, которым корень доступен.
	// Пустой список означает «только администраторы».
	AllowedUsers []string `json:"allowedUsers"`
	// IsDefault — корень автоматически выдаётся новым пользователям.
	IsDefault bool `json:"isDefault"`
}

// Allows сообщает, присутствует ли username в списке AllowedUsers.
func (r MediaRoot) Allows(username string) bool {
	return slices.Contains(r.AllowedUsers, username)
}

// Settings — конфигурация корней.
// Version — монотонный счётчик для compare-and-swap записи в ConfigStore.
type Settings struct {
	Version int64       `json:"version"`
	Roots   []MediaRoot `json:"roots"`
}

// User — учётная запись пользователя.
type User struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsAdmin сообщает, является ли пользователь администратором.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Principal возвращает принципала для данной учётной записи.
func (u User) Principal() Principal {
	return Principal{Username: u.Username, IsAdmin: u.IsAdmin()}
}

// HistoryEntry — запись журнала активности.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Action    Action    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// ResolvedLocation — результат разрешения символического пути.
// Центральный инвариант: AbsolutePath лексически начинается с Boundary.
type ResolvedLocation struct {
	// AbsolutePath — проверенный абсолютный путь внутри границы.
	AbsolutePath string
	// Boundary — граничная директория принципала для данного корня.
	Boundary string
	// RootIndex — индекс корня в полном списке (стабилен для ссылок).
	RootIndex int
}

// FileItem — элемент листинга директории.
// Path — символический путь (<rootIndex>/<сегменты>), единственная
// клиентская схема адресации.
type FileItem struct {
	Name         string    `json:"name"`
	IsDirectory  bool      `json:"isDirectory"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Path         string    `json:"path"`
}

// SymbolicPath собирает символический путь из индекса корня и сегментов.
// Пустые сегменты отбрасываются.
func SymbolicPath(rootIndex int, segments ...string) string {
	parts := []string{strconv.Itoa(rootIndex)}
	for _, s := range segments {
		for _, seg := range strings.Split(s, "/") {
			if seg != "" {
				parts = append(parts, seg)
			}
		}
	}
	return strings.Join(parts, "/")
}
