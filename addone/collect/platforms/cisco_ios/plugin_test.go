package cisco_ios

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchdoc/addone/collect"
)

const interfacesStatus = `show interfaces status

Port      Name               Status       Vlan       Duplex  Speed Type
Gi1/0/1   uplink core        connected    trunk      a-full a-1000 10/100/1000BaseTX
Gi1/0/2                      notconnect   10           auto   auto 10/100/1000BaseTX
Po1                          connected    trunk      a-full a-1000
sw1#`

const vlanBrief = `VLAN Name                             Status    Ports
---- -------------------------------- --------- -------------------------------
1    default                          active    Gi1/0/3, Gi1/0/4, Gi1/0/5
                                                Gi1/0/6
10   users                            active    Gi1/0/2
1002 fddi-default                     act/unsup
`

const inventory = `NAME: "1", DESCR: "WS-C3750X-48P"
PID: WS-C3750X-48P-S   , VID: V02  , SN: FDO1234X0AB

NAME: "GigabitEthernet1/1/1", DESCR: "1000BaseSX SFP"
PID: GLC-SX-MMD          , VID: V01  , SN: AGJ1234567
`

const cdpDetail = `-------------------------
Device ID: sw2.example.com
Entry address(es):
  IP address: 10.0.0.2
Platform: cisco WS-C2960X-48TS-L,  Capabilities: Switch IGMP
Interface: GigabitEthernet1/0/1,  Port ID (outgoing port): GigabitEthernet0/1
Holdtime : 145 sec

Version :
Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(2)E7, RELEASE SOFTWARE (fc3)
Technical Support: http://www.cisco.com/techsupport

advertisement version: 2
Management address(es):
  IP address: 10.0.0.2

-------------------------
Device ID: ap-3
Entry address(es):
Platform: cisco AIR-AP2802I,  Capabilities: Trans-Bridge
Interface: GigabitEthernet1/0/7,  Port ID (outgoing port): GigabitEthernet0
Holdtime : 120 sec
`

const lldpDetail = `------------------------------------------------
Local Intf: Gi1/0/48
Chassis id: 0011.2233.4455
Port id: Gi0/24
Port Description: GigabitEthernet0/24
System Name: dist-1

System Description:
Cisco IOS Software

Time remaining: 100 seconds
System Capabilities: B,R
Enabled Capabilities: B
Management Addresses:
    IP: 10.0.0.9
Auto Negotiation - supported, enabled

------------------------------------------------
Local Intf: Gi1/0/47
Chassis id: 00aa.bbcc.ddee
Port id: 7
System Name: not advertised

Total entries displayed: 2
`

const version = `Cisco IOS Software, C3750E Software (C3750E-UNIVERSALK9-M), Version 15.0(2)SE11, RELEASE SOFTWARE (fc3)
ROM: Bootstrap program is C3750E boot loader
sw1 uptime is 1 year, 2 weeks, 3 days, 4 hours, 5 minutes
System returned to ROM by power-on
System image file is "flash:/c3750e-universalk9-mz.150-2.SE11.bin"
cisco WS-C3750X-48P (PowerPC405) processor (revision W0) with 262144K bytes of memory.
Processor board ID FDO1234X0AB
System serial number            : FDO1234X0AB
Configuration register is 0xF
`

const etherchannel = `Flags:  D - down        P - bundled in port-channel
        U - in use

Number of channel-groups in use: 2
Group  Port-channel  Protocol    Ports
------+-------------+-----------+-----------------------------------------------
1      Po1(SU)         LACP      Gi1/0/49(P) Gi1/0/50(P)
                                 Gi2/0/49(P)
2      Po2(SD)          -
`

const spanningTree = `VLAN0010
  Spanning tree enabled protocol rstp
  Root ID    Priority    32778

Interface           Role Sts Cost      Prio.Nbr Type
------------------- ---- --- --------- -------- --------------------------------
Gi1/0/1             Desg FWD 4         128.1    P2p
Gi1/0/2             Altn BLK 4         128.2    P2p Edge

VLAN0020
Gi1/0/3             Root FWD 19        128.3    Shr
`

const trunk = `Port        Mode             Encapsulation  Status        Native vlan
Gi1/0/49    on               802.1q         trunking      1
Po1         on               802.1q         trunking      99

Port        Vlans allowed on trunk
Gi1/0/49    1-4094
Po1         10,20,30

Port        Vlans allowed and active in management domain
Gi1/0/49    1,10,20
Po1         10,20

Port        Vlans in spanning tree forwarding state and not pruned
Gi1/0/49    1,10
Po1         none
`

func parse(t *testing.T, cmd, raw string) collect.ParseOutput {
	t.Helper()
	out, err := (&Plugin{}).Parse(collect.ParseContext{Platform: "cisco_ios", Command: cmd}, raw)
	require.NoError(t, err)
	return out
}

func TestRegistered(t *testing.T) {
	p := collect.Get("cisco_ios")
	assert.Equal(t, "cisco_ios", p.Name())
	assert.Len(t, p.SystemCommands(), 9)
}

func TestTemplatesCompile(t *testing.T) {
	templatesOnce.Do(loadTemplates)
	assert.Len(t, templates, len(templateIndex))
}

func TestParseInterfacesStatus(t *testing.T) {
	out := parse(t, "show interfaces status", interfacesStatus)
	assert.Equal(t, collect.ParserTextFSM, out.Parser)
	assert.Equal(t, []string{"port", "name", "status", "vlan", "duplex", "speed", "type"}, out.Headers)
	require.Len(t, out.Rows, 3)
	assert.Equal(t, []string{"Gi1/0/1", "uplink core", "connected", "trunk", "a-full", "a-1000", "10/100/1000BaseTX"}, out.Rows[0])
	assert.Equal(t, []string{"Gi1/0/2", "", "notconnect", "10", "auto", "auto", "10/100/1000BaseTX"}, out.Rows[1])
	assert.Equal(t, "Po1", out.Rows[2][0])
	assert.Equal(t, "", out.Rows[2][6])

	headers, rows := parseInterfacesStatus(collect.CleanOutput(interfacesStatus))
	assert.Equal(t, statusHeaders, headers)
	require.Len(t, rows, 3)
	// 列位置切分只保证左对齐的列
	assert.Equal(t, []string{"Gi1/0/1", "uplink core", "connected", "trunk"}, rows[0][:4])
	assert.Equal(t, []string{"Gi1/0/2", "", "notconnect", "10"}, rows[1][:4])
}

func TestParseVlanBrief(t *testing.T) {
	out := parse(t, "show vlan brief", vlanBrief)
	assert.Equal(t, collect.ParserTextFSM, out.Parser)
	assert.Equal(t, [][]string{
		{"1", "default", "active", "Gi1/0/3, Gi1/0/4, Gi1/0/5, Gi1/0/6"},
		{"10", "users", "active", "Gi1/0/2"},
		{"1002", "fddi-default", "act/unsup", ""},
	}, out.Rows)

	_, rows := parseVlanBrief(vlanBrief)
	assert.Equal(t, out.Rows, rows)
}

func TestParseInventory(t *testing.T) {
	out := parse(t, "show inventory", inventory)
	assert.Equal(t, []string{"name", "descr", "pid", "vid", "sn"}, out.Headers)
	assert.Equal(t, [][]string{
		{"1", "WS-C3750X-48P", "WS-C3750X-48P-S", "V02", "FDO1234X0AB"},
		{"GigabitEthernet1/1/1", "1000BaseSX SFP", "GLC-SX-MMD", "V01", "AGJ1234567"},
	}, out.Rows)

	headers, rows := parseInventory(inventory)
	assert.Equal(t, "serial", headers[4])
	assert.Equal(t, out.Rows, rows)
}

func TestParseCDPNeighborsDetail(t *testing.T) {
	out := parse(t, "show cdp neighbors detail", cdpDetail)
	assert.Equal(t, collect.ParserTextFSM, out.Parser)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, []string{
		"sw2.example.com", "10.0.0.2", "cisco WS-C2960X-48TS-L", "Switch IGMP",
		"GigabitEthernet1/0/1", "GigabitEthernet0/1", "145",
		"Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(2)E7, RELEASE SOFTWARE (fc3)",
	}, out.Rows[0])
	assert.Equal(t, "ap-3", out.Rows[1][0])
	assert.Equal(t, "", out.Rows[1][1])
	assert.Equal(t, "GigabitEthernet1/0/7", out.Rows[1][4])

	headers, rows := parseCDPNeighborsDetail(cdpDetail)
	assert.Equal(t, "management_ip", headers[1])
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"sw2.example.com", "10.0.0.2"}, rows[0][:2])
	assert.Equal(t, "GigabitEthernet0/1", rows[0][5])
}

func TestParseLLDPNeighborsDetail(t *testing.T) {
	out := parse(t, "show lldp neighbors detail", lldpDetail)
	assert.Equal(t, []string{
		"local_interface", "chassis_id", "neighbor_interface", "port_description",
		"neighbor_name", "mgmt_address", "capabilities",
	}, out.Headers)
	assert.Equal(t, [][]string{
		{"Gi1/0/48", "0011.2233.4455", "Gi0/24", "GigabitEthernet0/24", "dist-1", "10.0.0.9", "B,R"},
		{"Gi1/0/47", "00aa.bbcc.ddee", "7", "", "not advertised", "", ""},
	}, out.Rows)
}

func TestParseVersion(t *testing.T) {
	out := parse(t, "show version", version)
	require.Len(t, out.Rows, 1)
	got := map[string]string{}
	for i, h := range out.Headers {
		got[h] = out.Rows[0][i]
	}
	assert.Equal(t, "15.0(2)SE11", got["version"])
	assert.Equal(t, "sw1", got["hostname"])
	assert.Equal(t, "WS-C3750X-48P", got["hardware"])
	assert.Equal(t, "FDO1234X0AB", got["serial"])
	assert.Equal(t, "c3750e-universalk9-mz.150-2.SE11.bin", got["running_image"])
	assert.Equal(t, "0xF", got["config_register"])

	headers, rows := parseVersion(version)
	assert.Equal(t, []string{"hostname", "version", "platform", "serial", "uptime"}, headers)
	assert.Equal(t, []string{"sw1", "15.0(2)SE11", "WS-C3750X-48P", "FDO1234X0AB", "1 year, 2 weeks, 3 days, 4 hours, 5 minutes"}, rows[0])
}

func TestParseEtherchannelSummary(t *testing.T) {
	out := parse(t, "show etherchannel summary", etherchannel)
	assert.Equal(t, []string{"group", "bundle_name", "bundle_status", "protocol", "member_interfaces"}, out.Headers)
	assert.Equal(t, [][]string{
		{"1", "Po1", "SU", "LACP", "Gi1/0/49, Gi1/0/50, Gi2/0/49"},
		{"2", "Po2", "SD", "-", ""},
	}, out.Rows)

	headers, rows := parseEtherchannelSummary(etherchannel)
	assert.Equal(t, "Port-Channel", headers[1])
	assert.Equal(t, [][]string{
		{"1", "Po1", "LACP", "Up", "SU", "Gi1/0/49(P), Gi1/0/50(P), Gi2/0/49(P)"},
		{"2", "Po2", "-", "Down", "SD", ""},
	}, rows)
}

func TestParseSpanningTreeFallback(t *testing.T) {
	out := parse(t, "show spanning-tree", spanningTree)
	assert.Equal(t, collect.ParserFallback, out.Parser)
	assert.Equal(t, [][]string{
		{"10", "Gi1/0/1", "desg", "fwd", "4", "128.1", "P2p"},
		{"10", "Gi1/0/2", "altn", "blk", "4", "128.2", "P2p Edge"},
		{"20", "Gi1/0/3", "root", "fwd", "19", "128.3", "Shr"},
	}, out.Rows)
}

func TestParseInterfacesTrunkFallback(t *testing.T) {
	out := parse(t, "show interfaces trunk", trunk)
	assert.Equal(t, collect.ParserFallback, out.Parser)
	assert.Equal(t, [][]string{
		{"Gi1/0/49", "on", "802.1q", "trunking", "1", "1-4094", "1,10,20", "1,10"},
		{"Po1", "on", "802.1q", "trunking", "99", "10,20,30", "10,20", "none"},
	}, out.Rows)
}

func TestParseUnknownCommandKeepsRaw(t *testing.T) {
	out := parse(t, "show clock", "12:00:00.000 UTC Mon Jan 1 2024")
	assert.False(t, out.Parsed())
	assert.Equal(t, "", out.Parser)
	assert.Equal(t, "12:00:00.000 UTC Mon Jan 1 2024", out.Raw)

	// 模板与回退都无结果时仅保留原始文本
	out = parse(t, "show vlan brief", "% Invalid input detected")
	assert.False(t, out.Parsed())
}
