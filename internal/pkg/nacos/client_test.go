package nacos

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nacos-group/nacos-sdk-go/v2/model"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNaming struct {
	mu           sync.Mutex
	instances    []model.Instance
	selectErr    error
	registered   []vo.RegisterInstanceParam
	deregistered []vo.DeregisterInstanceParam
	closed       bool
}

func (f *fakeNaming) RegisterInstance(p vo.RegisterInstanceParam) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, p)
	return true, nil
}

func (f *fakeNaming) DeregisterInstance(p vo.DeregisterInstanceParam) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, p)
	return true, nil
}

func (f *fakeNaming) SelectInstances(vo.SelectInstancesParam) ([]model.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instances, f.selectErr
}

func (f *fakeNaming) CloseClient() { f.closed = true }

func (f *fakeNaming) set(instances []model.Instance, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances, f.selectErr = instances, err
}

func healthy(ip string, port uint64) model.Instance {
	return model.Instance{Ip: ip, Port: port, Healthy: true, Enable: true, Weight: 10}
}

func TestParseServers(t *testing.T) {
	servers, err := parseServers("10.0.0.1:8848, 10.0.0.2:8849")
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, "10.0.0.2", servers[1].IpAddr)
	assert.EqualValues(t, 8849, servers[1].Port)

	for _, bad := range []string{"", "10.0.0.1", "10.0.0.1:http", "10.0.0.1:0"} {
		_, err := parseServers(bad)
		assert.Error(t, err, bad)
	}
}

func TestRegistryRegisterAndClose(t *testing.T) {
	n := &fakeNaming{}
	r := newRegistry(n, "")

	require.NoError(t, r.Register(Instance{Service: "sale-service", IP: "10.1.0.5", Port: 8080, Metadata: map[string]string{"lock": "redis"}}))
	require.Len(t, n.registered, 1)
	assert.Equal(t, defaultGroup, n.registered[0].GroupName)
	assert.True(t, n.registered[0].Ephemeral)
	assert.Equal(t, "redis", n.registered[0].Metadata["lock"])

	require.NoError(t, r.Close())
	require.Len(t, n.deregistered, 1)
	assert.Equal(t, "sale-service", n.deregistered[0].ServiceName)
	assert.EqualValues(t, 8080, n.deregistered[0].Port)
	assert.True(t, n.closed)
}

func TestResolverRoundRobinsHealthyInstances(t *testing.T) {
	n := &fakeNaming{}
	n.set([]model.Instance{
		healthy("10.0.0.1", 8081),
		{Ip: "10.0.0.9", Port: 8081, Healthy: true, Enable: false, Weight: 10},
		healthy("10.0.0.2", 8081),
	}, nil)
	res := newRegistry(n, "sale").Resolver("wallet-service")

	var got []string
	for i := 0; i < 4; i++ {
		base, err := res.Resolve(context.Background())
		require.NoError(t, err)
		got = append(got, base)
	}
	assert.Equal(t, []string{
		"http://10.0.0.1:8081", "http://10.0.0.2:8081",
		"http://10.0.0.1:8081", "http://10.0.0.2:8081",
	}, got)
}

func TestResolverFallsBackToLastKnownInstances(t *testing.T) {
	n := &fakeNaming{}
	res := newRegistry(n, "").Resolver("wallet-service")

	n.set(nil, errors.New("nacos down"))
	_, err := res.Resolve(context.Background())
	require.Error(t, err)

	n.set(nil, nil)
	_, err = res.Resolve(context.Background())
	require.ErrorIs(t, err, ErrNoInstance)

	n.set([]model.Instance{healthy("10.0.0.3", 9000)}, nil)
	base, err := res.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.3:9000", base)

	n.set(nil, errors.New("nacos down"))
	base, err = res.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.3:9000", base)
}

func TestResolverHonoursCancelledContext(t *testing.T) {
	n := &fakeNaming{}
	n.set([]model.Instance{healthy("10.0.0.3", 9000)}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newRegistry(n, "").Resolver("wallet-service").Resolve(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
