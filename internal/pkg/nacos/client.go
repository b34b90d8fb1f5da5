package nacos

import (
	"net"
	"strconv"
	"strings"
	"sync"

	"nexus-sale/internal/pkg/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/model"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
)

const defaultGroup = "DEFAULT_GROUP"

// naming 是 Registry 用到的 INamingClient 子集
type naming interface {
	RegisterInstance(param vo.RegisterInstanceParam) (bool, error)
	DeregisterInstance(param vo.DeregisterInstanceParam) (bool, error)
	SelectInstances(param vo.SelectInstancesParam) ([]model.Instance, error)
	CloseClient()
}

// Config 对应 infra.nacos 配置段
type Config struct {
	ServerAddrs string // "host1:8848,host2:8848"
	Namespace   string
	Group       string
}

// Instance 是本进程注册到 Nacos 的一个服务实例
type Instance struct {
	Service  string
	IP       string
	Port     int
	Metadata map[string]string
}

// Registry 负责 sale-service / wallet-service 的注册与发现
type Registry struct {
	naming naming
	group  string

	mu         sync.Mutex
	registered []Instance
}

// New 连接 Nacos。只用命名服务，配置中心不接入。
func New(cfg Config) (*Registry, error) {
	servers, err := parseServers(cfg.ServerAddrs)
	if err != nil {
		return nil, err
	}
	if cfg.Namespace == "" {
		logger.Logger.Warn().Msg("WARN: nacos namespace is empty, using public.")
	}

	clientConfig := constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(cfg.Namespace),
	)
	client, err := clients.NewNamingClient(vo.NacosClientParam{
		ClientConfig:  clientConfig,
		ServerConfigs: servers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create nacos naming client")
	}
	logger.Logger.Info().Msgf("INFO: connected to nacos %s.", cfg.ServerAddrs)
	return newRegistry(client, cfg.Group), nil
}

func newRegistry(n naming, group string) *Registry {
	if group == "" {
		group = defaultGroup
	}
	return &Registry{naming: n, group: group}
}

func parseServers(addrs string) ([]constant.ServerConfig, error) {
	var servers []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		host, portText, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "nacos address %q", addr)
		}
		port, err := strconv.ParseUint(portText, 10, 64)
		if err != nil || port == 0 {
			return nil, errors.Errorf("nacos address %q: bad port", addr)
		}
		servers = append(servers, *constant.NewServerConfig(host, port))
	}
	if len(servers) == 0 {
		return nil, errors.New("nacos: no server address")
	}
	return servers, nil
}

// Register 以临时节点注册，进程退出心跳停止后自动摘除
func (r *Registry) Register(inst Instance) error {
	ok, err := r.naming.RegisterInstance(vo.RegisterInstanceParam{
		Ip:          inst.IP,
		Port:        uint64(inst.Port),
		ServiceName: inst.Service,
		GroupName:   r.group,
		Weight:      10,
		Enable:      true,
		Healthy:     true,
		Ephemeral:   true,
		Metadata:    inst.Metadata,
	})
	if err != nil {
		return errors.Wrapf(err, "register %s", inst.Service)
	}
	if !ok {
		return errors.Errorf("register %s: rejected by nacos", inst.Service)
	}
	r.mu.Lock()
	r.registered = append(r.registered, inst)
	r.mu.Unlock()
	logger.Logger.Info().Msgf("INFO: [Nacos] %s registered at %s:%d.", inst.Service, inst.IP, inst.Port)
	return nil
}

// Close 注销所有已注册实例后关闭客户端，返回第一个注销错误
func (r *Registry) Close() error {
	r.mu.Lock()
	registered := r.registered
	r.registered = nil
	r.mu.Unlock()

	var first error
	for _, inst := range registered {
		_, err := r.naming.DeregisterInstance(vo.DeregisterInstanceParam{
			Ip:          inst.IP,
			Port:        uint64(inst.Port),
			ServiceName: inst.Service,
			GroupName:   r.group,
			Ephemeral:   true,
		})
		if err != nil && first == nil {
			first = errors.Wrapf(err, "deregister %s", inst.Service)
		}
	}
	r.naming.CloseClient()
	return first
}
