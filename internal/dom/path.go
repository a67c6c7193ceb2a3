package dom

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Path 返回节点的结构路径，形如 html/body/div[2]/p[1]。
// 序号是同名兄弟中的位置（从 1 开始），用于区分结构位置相同但
// 文本相同的分段。
func Path(n *html.Node) string {
	if n == nil {
		return ""
	}

	var parts []string
	for cur := n; cur != nil && cur.Type != html.DocumentNode; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		idx := 1
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			if sib.Type == html.ElementNode && sib.Data == cur.Data {
				idx++
			}
		}
		parts = append(parts, fmt.Sprintf("%s[%d]", cur.Data, idx))
	}

	// 反转为自顶向下
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// indexPath 返回从根到节点的兄弟序号链，用于文档序比较
func indexPath(n *html.Node) []int {
	var path []int
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		idx := 0
		for sib := cur.PrevSibling; sib != nil; sib = sib.PrevSibling {
			idx++
		}
		path = append(path, idx)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// CompareOrder 按文档序比较两个节点。
// a 在 b 之前返回负数，之后返回正数，同一节点返回 0。
func CompareOrder(a, b *html.Node) int {
	if a == b {
		return 0
	}
	pa, pb := indexPath(a), indexPath(b)
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			return pa[i] - pb[i]
		}
	}
	// 前缀相同时祖先在前
	return len(pa) - len(pb)
}

// IsAncestor 判断 a 是否为 b 的真祖先
func IsAncestor(a, b *html.Node) bool {
	for cur := b.Parent; cur != nil; cur = cur.Parent {
		if cur == a {
			return true
		}
	}
	return false
}

// TopmostNodes 只保留集合中最顶层的节点：
// 凡是另一个待处理节点的后代都被丢弃，避免重复处理同一子树。
func TopmostNodes(nodes []*html.Node) []*html.Node {
	var result []*html.Node
	for _, n := range nodes {
		covered := false
		for _, other := range nodes {
			if other != n && IsAncestor(other, n) {
				covered = true
				break
			}
		}
		if !covered {
			result = append(result, n)
		}
	}
	return result
}

// SortByDocumentOrder 把节点按文档序原地排序
func SortByDocumentOrder(nodes []*html.Node) {
	// 节点数量通常很小，插入排序足够
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && CompareOrder(nodes[j-1], nodes[j]) > 0; j-- {
			nodes[j-1], nodes[j] = nodes[j], nodes[j-1]
		}
	}
}

// ElementText 拼接子树内全部文本节点并去除首尾空白。
// 重处理候选判定与原子内联折叠都以它为准；遍历不加锁，
// 并发场景下调用方需持有文档读锁。
func ElementText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(cur *html.Node) {
		if cur.Type == html.TextNode {
			sb.WriteString(cur.Data)
		}
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}
