package netns

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedExecutor struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (s *scriptedExecutor) Execute(ctx context.Context, namespace string, argv []string) (string, error) {
	key := strings.TrimSpace(namespace + " " + strings.Join(argv, " "))
	s.calls = append(s.calls, key)
	if err := s.errs[key]; err != nil {
		return "", err
	}
	return s.outputs[key], nil
}

func TestParseNamespaceList(t *testing.T) {
	out := "qlbaas-p2 (id: 1)\nqlbaas-p1 (id: 0)\n\nplain\n"
	assert.Equal(t, []string{"qlbaas-p2", "qlbaas-p1", "plain"}, ParseNamespaceList(out))
	assert.Empty(t, ParseNamespaceList(""))
}

func TestParseLinkNames(t *testing.T) {
	out := `1: lo: <LOOPBACK,UP,LOWER_UP> mtu 65536 qdisc noqueue state UNKNOWN mode DEFAULT group default qlen 1000\    link/loopback 00:00:00:00:00:00 brd 00:00:00:00:00:00
7: tap8c1d2e3f-4a@if8: <BROADCAST,MULTICAST,UP,LOWER_UP> mtu 1500 qdisc noqueue state UP mode DEFAULT group default qlen 1000\    link/ether fa:16:3e:00:00:01 brd ff:ff:ff:ff:ff:ff link-netnsid 0
`
	assert.Equal(t, []string{"lo", "tap8c1d2e3f-4a"}, ParseLinkNames(out))
}

func TestExists(t *testing.T) {
	ex := &scriptedExecutor{outputs: map[string]string{
		"ip netns list": "qlbaas-p1 (id: 0)\nqlbaas-p10\n",
	}}

	ok, err := Exists(context.Background(), ex, "qlbaas-p1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Exists(context.Background(), ex, "qlbaas-p")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExists_Error(t *testing.T) {
	ex := &scriptedExecutor{errs: map[string]error{"ip netns list": errors.New("permission denied")}}

	_, err := Exists(context.Background(), ex, "qlbaas-p1")
	assert.ErrorContains(t, err, "permission denied")
}

func TestAddAndDelete(t *testing.T) {
	ex := &scriptedExecutor{}

	require.NoError(t, Add(context.Background(), ex, "qlbaas-p1"))
	require.NoError(t, Delete(context.Background(), ex, "qlbaas-p1"))

	assert.Equal(t, []string{
		"ip netns add qlbaas-p1",
		"qlbaas-p1 ip link set lo up",
		"ip netns delete qlbaas-p1",
	}, ex.calls)
}

func TestDevices(t *testing.T) {
	ex := &scriptedExecutor{outputs: map[string]string{
		"qlbaas-p1 ip -o link show": "1: lo: <LOOPBACK> mtu 65536\n",
	}}

	devices, err := Devices(context.Background(), ex, "qlbaas-p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"lo"}, devices)
}
