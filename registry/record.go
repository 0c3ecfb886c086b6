package registry

import (
	"encoding/json"
	"sync"

	"github.com/ceyewan/shenyu-register/registry/types"
	"github.com/ceyewan/shenyu-register/xerrors"
)

// RPC 类型
const (
	RPCTypeHTTP        = "http"
	RPCTypeSpringCloud = "springCloud"
	RPCTypeGRPC        = "grpc"
	RPCTypeDubbo       = "dubbo"
	RPCTypeWebSocket   = "websocket"
)

// MetaDataRecord 一个可路由方法的元数据
type MetaDataRecord struct {
	AppName          string   `json:"appName,omitempty"`
	ContextPath      string   `json:"contextPath,omitempty"`
	Path             string   `json:"path,omitempty"`
	PathDesc         string   `json:"pathDesc,omitempty"`
	RPCType          string   `json:"rpcType,omitempty"`
	ServiceName      string   `json:"serviceName,omitempty"`
	MethodName       string   `json:"methodName,omitempty"`
	RuleName         string   `json:"ruleName,omitempty"`
	ParameterTypes   string   `json:"parameterTypes,omitempty"`
	RPCExt           string   `json:"rpcExt,omitempty"`
	Enabled          bool     `json:"enabled"`
	Host             string   `json:"host,omitempty"`
	Port             int      `json:"port"`
	PluginNames      []string `json:"pluginNames,omitempty"`
	RegisterMetaData bool     `json:"registerMetaData"`
}

// URIRecord 实例的网络地址
type URIRecord struct {
	Protocol    string `json:"protocol,omitempty"`
	AppName     string `json:"appName,omitempty"`
	ContextPath string `json:"contextPath,omitempty"`
	RPCType     string `json:"rpcType,omitempty"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port"`
}

// RegisteredEntry 已写入注册中心的节点，重连后据此重放
//
// Pending 表示最近一次写入因连接中断未落地，重放时必须覆盖写入；
// 否则只在节点缺失时重建。
type RegisteredEntry struct {
	Path    string
	Payload []byte
	Mode    types.CreateMode
	Pending bool
}

func marshalRecord(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, xerrors.Wrap(ErrSerialization, err.Error())
	}
	return data, nil
}

// replayMap 按路径保存最近一次写入，同一路径后写覆盖先写
type replayMap struct {
	m sync.Map // path -> RegisteredEntry
}

func (r *replayMap) store(e RegisteredEntry) {
	r.m.Store(e.Path, e)
}

func (r *replayMap) load(path string) (RegisteredEntry, bool) {
	v, ok := r.m.Load(path)
	if !ok {
		return RegisteredEntry{}, false
	}
	return v.(RegisteredEntry), true
}

func (r *replayMap) delete(path string) {
	r.m.Delete(path)
}

func (r *replayMap) paths() []string {
	var out []string
	r.m.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	return out
}
