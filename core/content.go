package core

// Content 是推荐候选的内容实体。
// 内容由外部系统创建，本核心只读取其元信息用于评分与解释。
type Content struct {
	ID          string   `json:"content_id" db:"content_id"`
	Title       string   `json:"title" db:"title"`
	Category    string   `json:"category" db:"category"`
	Tags        []string `json:"tags"`
	Description string   `json:"description" db:"description"`
}
