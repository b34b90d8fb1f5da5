package nacos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"nexus-sale/internal/pkg/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/model"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/pkg/errors"
)

// ErrNoInstance 表示目标服务当前没有可用实例，也没有可回退的地址
var ErrNoInstance = errors.New("no healthy instance")

// ServiceResolver 为钱包、地址等下游服务选出一个 base URL，实现 httpclient.Resolver。
// 在健康实例间轮询；Nacos 暂时不可达时沿用上一次查到的实例列表。
type ServiceResolver struct {
	registry *Registry
	service  string
	next     atomic.Uint64

	mu        sync.Mutex
	lastKnown []string
}

func (r *Registry) Resolver(service string) *ServiceResolver {
	return &ServiceResolver{registry: r, service: service}
}

func (s *ServiceResolver) Resolve(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	instances, err := s.registry.naming.SelectInstances(vo.SelectInstancesParam{
		ServiceName: s.service,
		GroupName:   s.registry.group,
		HealthyOnly: true,
	})
	endpoints := usable(instances)

	s.mu.Lock()
	switch {
	case err == nil && len(endpoints) > 0:
		s.lastKnown = endpoints
	case len(s.lastKnown) > 0:
		logger.Ctx(ctx).Warn().Err(err).Msgf("WARN: [Nacos] no fresh instance of %s, using last known list.", s.service)
		endpoints = s.lastKnown
	}
	s.mu.Unlock()

	if len(endpoints) == 0 {
		if err != nil {
			return "", errors.Wrapf(err, "resolve %s", s.service)
		}
		return "", errors.Wrap(ErrNoInstance, s.service)
	}
	i := s.next.Add(1) - 1
	return endpoints[i%uint64(len(endpoints))], nil
}

func usable(instances []model.Instance) []string {
	var out []string
	for _, inst := range instances {
		if !inst.Healthy || !inst.Enable || inst.Weight <= 0 {
			continue
		}
		out = append(out, fmt.Sprintf("http://%s:%d", inst.Ip, inst.Port))
	}
	return out
}
