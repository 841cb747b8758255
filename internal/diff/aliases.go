package diff

import "strings"

// 各领域的命令匹配子串
const (
	cmdVlanBrief        = "show vlan brief"
	cmdInterfacesStatus = "show interfaces status"
	cmdEtherchannel     = "show etherchannel summary"
	cmdInterfacesTrunk  = "show interfaces trunk"
	cmdCDPDetail        = "show cdp neighbors detail"
	cmdLLDPDetail       = "show lldp neighbors detail"
	cmdLLDP             = "show lldp neighbors"
)

// 字段别名表，键名均已经过 table.NormalizeKey 归一（小写，空格与连字符转下划线）
var (
	vlanKeys = []string{"vlan", "vlan_id", "vlanid"}

	interfaceKeys       = []string{"port", "interface", "name"}
	interfaceStatusKeys = []string{"status"}
	interfaceVlanKeys   = []string{"vlan", "access_vlan", "vlan_id"}

	portChannelKeys       = []string{"bundle_name", "port_channel", "po", "portchannel", "group"}
	portChannelStateKeys  = []string{"bundle_status", "status", "bundle_state", "flags"}
	portChannelMemberKeys = []string{
		"member_interfaces", "member_interface", "interfaces", "members", "member_ports",
	}

	trunkKeys        = []string{"port", "interface"}
	trunkNativeKeys  = []string{"native", "native_vlan", "nativevlan", "native_vlan_id"}
	trunkAllowedKeys = []string{
		"vlans_allowed", "allowed", "allowed_vlans", "vlans_allowed_on_trunk",
		"allowed_active_vlans", "vlans_allowed_and_active_in_management_domain",
	}

	neighborNameKeys = []string{
		"neighbor", "neighbor_name", "device_id", "destination_host",
		"system_name", "system_name_value", "chassis_id",
	}
	neighborLocalIfKeys  = []string{"local_if", "local_interface", "local_port", "interface"}
	neighborRemoteIfKeys = []string{
		"neighbor_if", "neighbor_interface", "neighbor_port", "port_id",
		"remote_port", "port_description", "port_id_value",
	}
)

// ifnameAbbrev 接口类型长名到短名，长的在前
var ifnameAbbrev = strings.NewReplacer(
	"TenGigabitEthernet", "Te",
	"TwentyFiveGigE", "Twe",
	"FortyGigabitEthernet", "Fo",
	"HundredGigE", "Hu",
	"GigabitEthernet", "Gi",
	"FastEthernet", "Fa",
	"Port-channel", "Po",
	"Port-Channel", "Po",
	"Ethernet", "Eth",
)

// CanonicalInterface 接口名缩写归一
func CanonicalInterface(name string) string {
	return ifnameAbbrev.Replace(strings.TrimSpace(name))
}
