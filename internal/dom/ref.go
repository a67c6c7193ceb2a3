package dom

import "golang.org/x/net/html"

// NodeRef 指向活动文档节点的非持有引用。
// 节点随时可能被后续变更摘除，因此唯一的取值操作是 Resolve：
// 仍然连接时返回节点，否则返回 nil，消费方必须显式处理脱离的情况。
type NodeRef struct {
	doc  *Document
	node *html.Node
}

// Ref 为节点创建引用
func (d *Document) Ref(n *html.Node) NodeRef {
	return NodeRef{doc: d, node: n}
}

// Resolve 返回引用的节点，节点已脱离文档时返回 nil
func (r NodeRef) Resolve() *html.Node {
	if r.doc == nil || r.node == nil {
		return nil
	}
	if !r.doc.Contains(r.node) {
		return nil
	}
	return r.node
}

// IsConnected 判断引用的节点是否仍连接在文档上
func (r NodeRef) IsConnected() bool {
	return r.Resolve() != nil
}

// Document 返回引用所属的文档
func (r NodeRef) Document() *Document {
	return r.doc
}
