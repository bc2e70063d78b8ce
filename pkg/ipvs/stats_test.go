package ipvs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStats(t *testing.T) {
	out := `IP Virtual Server version 1.2.1 (size=4096)
Prot LocalAddress:Port               Conns   InPkts  OutPkts  InBytes OutBytes
  -> RemoteAddress:Port
TCP  10.0.0.5:80                        12      340        0    20400        0
  -> 10.0.0.10:80                        7      200        0    12000        0
  -> 10.0.0.11:80                        5      140        0     8400        0
TCP  10.0.0.5:443                     1234K      56M        0      78G       2T
`

	stats, err := ParseStats(out)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, ServiceStats{
		Protocol: ProtocolTCP, Address: "10.0.0.5", Port: 80,
		Conns: 12, InPkts: 340, InBytes: 20400,
		RealServers: []RealServerStats{
			{Address: "10.0.0.10", Port: 80, Conns: 7, InPkts: 200, InBytes: 12000},
			{Address: "10.0.0.11", Port: 80, Conns: 5, InPkts: 140, InBytes: 8400},
		},
	}, stats[0])

	assert.Equal(t, uint64(1234000), stats[1].Conns)
	assert.Equal(t, uint64(56000000), stats[1].InPkts)
	assert.Equal(t, uint64(78000000000), stats[1].InBytes)
	assert.Equal(t, uint64(2000000000000), stats[1].OutBytes)
	assert.Empty(t, stats[1].RealServers)
}

func TestParseStats_SinglePacketColumn(t *testing.T) {
	out := `IP Virtual Server version 1.2.1 (size=4096)
Prot LocalAddress:Port               Conns     Pkts  InBytes OutBytes
  -> RemoteAddress:Port
TCP  10.0.0.5:80                        12      340    20400     9100
  -> 10.0.0.10:80                        7      200    12000     5300
TCP  10.0.0.5:443                     1234K      56M    78G       2T
`

	stats, err := ParseStats(out)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, ServiceStats{
		Protocol: ProtocolTCP, Address: "10.0.0.5", Port: 80,
		Conns: 12, InPkts: 340, InBytes: 20400, OutBytes: 9100,
		RealServers: []RealServerStats{
			{Address: "10.0.0.10", Port: 80, Conns: 7, InPkts: 200, InBytes: 12000, OutBytes: 5300},
		},
	}, stats[0])
	assert.Zero(t, stats[1].OutPkts)
	assert.Equal(t, uint64(78000000000), stats[1].InBytes)
	assert.Equal(t, uint64(2000000000000), stats[1].OutBytes)
}

func TestParseStats_Malformed(t *testing.T) {
	for name, out := range map[string]string{
		"short row":      "TCP  10.0.0.5:80 1 2 3\n",
		"four fields":    "TCP  10.0.0.5:80 1 2\n",
		"bad counter":    "TCP  10.0.0.5:80 1 2 3 4 five\n",
		"orphan server":  "  -> 10.0.0.10:80 1 2 3 4 5\n",
		"suffix only":    "TCP  10.0.0.5:80 K 2 3 4 5\n",
		"negative value": "TCP  10.0.0.5:80 -1 2 3 4 5\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseStats(out)
			assert.Error(t, err)
		})
	}
}

func TestParseCounter(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"0", 0},
		{"987", 987},
		{"3K", 3000},
		{"3M", 3000000},
		{"3G", 3000000000},
		{"3T", 3000000000000},
	}
	for _, tt := range tests {
		got, err := ParseCounter(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseCounter("")
	assert.Error(t, err)
}

func TestStatsRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		stats []ServiceStats
	}{
		{"no services", nil},
		{"service without servers", []ServiceStats{
			{Protocol: ProtocolTCP, Address: "10.0.0.5", Port: 80, Conns: 1},
		}},
		{"services with servers", []ServiceStats{
			{Protocol: ProtocolTCP, Address: "10.0.0.5", Port: 80, Conns: 10, InPkts: 20, OutPkts: 30, InBytes: 40, OutBytes: 50,
				RealServers: []RealServerStats{
					{Address: "10.0.0.10", Port: 80, Conns: 4, InPkts: 8, OutPkts: 12, InBytes: 16, OutBytes: 20},
				}},
			{Protocol: ProtocolUDP, Address: "10.0.0.5", Port: 53, Conns: 123456789012,
				RealServers: []RealServerStats{
					{Address: "10.0.0.11", Port: 53},
					{Address: "10.0.0.12", Port: 53, Conns: 1},
				}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStats(FormatStats(tt.stats))
			require.NoError(t, err)
			assert.Equal(t, tt.stats, got)
		})
	}
}
