package dom

import "golang.org/x/net/html"

// RecordType 变更记录类型
type RecordType int

const (
	RecordChildList     RecordType = iota // 子节点增删
	RecordCharacterData                   // 文本内容变化
	RecordAttributes                      // 属性变化
)

// String 返回记录类型名称
func (t RecordType) String() string {
	switch t {
	case RecordChildList:
		return "childList"
	case RecordCharacterData:
		return "characterData"
	case RecordAttributes:
		return "attributes"
	default:
		return "unknown"
	}
}

// MutationRecord 单条 DOM 变更记录
type MutationRecord struct {
	Type          RecordType
	Target        *html.Node   // 发生变更的节点（childList 时为父节点）
	AddedNodes    []*html.Node // 新增的节点
	RemovedNodes  []*html.Node // 移除的节点
	AttributeName string       // 属性变更时的属性名
	OldValue      string       // 变更前的值
}

// NavKind 导航信号类型
type NavKind int

const (
	NavPushState NavKind = iota
	NavReplaceState
	NavPopState
	NavHashChange
	NavTitleChange
)

// String 返回导航信号名称
func (k NavKind) String() string {
	switch k {
	case NavPushState:
		return "pushState"
	case NavReplaceState:
		return "replaceState"
	case NavPopState:
		return "popstate"
	case NavHashChange:
		return "hashchange"
	case NavTitleChange:
		return "titlechange"
	default:
		return "unknown"
	}
}

// NavEvent 导航事件
type NavEvent struct {
	Kind  NavKind
	URL   string // 事件发生后的页面 URL
	Title string // 事件发生后的页面标题
}
