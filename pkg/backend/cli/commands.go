package cli

import "github.com/andrej220/fanout/pkg/backend"

var _ backend.Describer = (*Adapter)(nil)

// commonCommands is advertised to callers as a starting point. The adapter
// still accepts any command.
var commonCommands = []backend.Capability{
	{Name: "show version", Description: "Display device version and system information"},
	{Name: "show running-config", Description: "Display current device configuration"},
	{Name: "show interfaces", Description: "Display interface status and counters"},
	{Name: "show ip interface brief", Description: "Display a summary of interface IP addresses and status"},
	{Name: "show ip route", Description: "Display the IP routing table"},
	{Name: "show ip arp", Description: "Display the ARP table"},
	{Name: "show mac address-table", Description: "Display learned MAC addresses"},
	{Name: "show vlan brief", Description: "Display VLANs and their member ports"},
	{Name: "show lldp neighbors", Description: "Display LLDP neighbors"},
	{Name: "show logging", Description: "Display the device log buffer"},
}

// Capabilities lists common CLI commands with their descriptions.
func (a *Adapter) Capabilities() []backend.Capability {
	out := make([]backend.Capability, len(commonCommands))
	copy(out, commonCommands)
	return out
}
