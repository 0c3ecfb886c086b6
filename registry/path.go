package registry

import (
	"strconv"
	"strings"
)

// DefaultRoot 默认路径根
const DefaultRoot = "/shenyu"

// PathBuilder 根据 rpcType、contextPath 与记录标识推导注册路径
//
//	{root}/register/metadata/{rpcType}/{contextPath}/{metadataNodeName}
//	{root}/register/uri/{rpcType}/{contextPath}/{host}:{port}
//
// 所有片段中的 '/' 都会被转义，不会破坏层级。零值使用 DefaultRoot。
type PathBuilder struct {
	Root string
}

func (b PathBuilder) root() string {
	root := strings.TrimRight(b.Root, "/")
	if root == "" {
		return DefaultRoot
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	return root
}

// MetadataParent 元数据父路径
func (b PathBuilder) MetadataParent(rpcType, contextPath string) string {
	return b.root() + "/register/metadata/" + escapeSegment(rpcType) + "/" + escapeSegment(contextPath)
}

// URIParent URI 父路径
func (b PathBuilder) URIParent(rpcType, contextPath string) string {
	return b.root() + "/register/uri/" + escapeSegment(rpcType) + "/" + escapeSegment(contextPath)
}

// MetadataPath 元数据节点完整路径
func (b PathBuilder) MetadataPath(rec *MetaDataRecord) string {
	ctx := RealNode(rec.ContextPath, rec.AppName)
	return b.MetadataParent(rec.RPCType, ctx) + "/" + escapeSegment(MetadataNodeName(rec))
}

// URIPath URI 节点完整路径
func (b PathBuilder) URIPath(rec *URIRecord) string {
	ctx := RealNode(rec.ContextPath, rec.AppName)
	return b.URIParent(rec.RPCType, ctx) + "/" + escapeSegment(URINodeName(rec))
}

// RealNode contextPath 为空时使用 appName，并去掉开头的 '/'
func RealNode(contextPath, appName string) string {
	node := contextPath
	if node == "" {
		node = appName
	}
	return strings.TrimPrefix(node, "/")
}

// MetadataNodeName 元数据节点名
//
// http 与 springCloud 使用 "{contextPath}.{ruleName}"（ruleName 中的 '/' 换成 '.'），
// 其余类型使用 "{serviceName}.{methodName}"。有参数类型时追加 "(parameterTypes)" 区分重载。
func MetadataNodeName(rec *MetaDataRecord) string {
	var name string
	switch rec.RPCType {
	case RPCTypeHTTP, RPCTypeSpringCloud:
		ctx := RealNode(rec.ContextPath, rec.AppName)
		rule := strings.ReplaceAll(strings.Trim(rec.RuleName, "/"), "/", ".")
		name = strings.Join(nonEmpty(ctx, rule), ".")
	default:
		name = strings.Join(nonEmpty(rec.ServiceName, rec.MethodName), ".")
	}
	if rec.ParameterTypes != "" {
		name += "(" + rec.ParameterTypes + ")"
	}
	return name
}

// URINodeName "{host}:{port}"
func URINodeName(rec *URIRecord) string {
	return rec.Host + ":" + strconv.Itoa(rec.Port)
}

// escapeSegment 去掉首尾 '/' 后转义 '%' 与 '/'
func escapeSegment(s string) string {
	s = strings.Trim(s, "/")
	if !strings.ContainsAny(s, "%/") {
		return s
	}
	s = strings.ReplaceAll(s, "%", "%25")
	return strings.ReplaceAll(s, "/", "%2F")
}

func nonEmpty(parts ...string) []string {
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
