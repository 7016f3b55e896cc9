package getter

import (
	"github.com/andrej220/fanout/pkg/processor"
)

// Recipe is how one platform answers a getter.
type Recipe struct {
	Command    string
	Shape      processor.Shape
	Processors []string
}

type Getter struct {
	Name        string
	Description string
	Recipes     map[string]Recipe // keyed by platform
}

const (
	trim      = processor.ProcessorTypeTrim
	dropEmpty = processor.ProcessorTypeDropEmpty
	dropBang  = processor.ProcessorTypeDropComments
	banner    = processor.ProcessorTypeDropBanner
)

func kv(cmd string) Recipe {
	return Recipe{Command: cmd, Shape: processor.ShapeKeyValue, Processors: []string{dropEmpty, trim}}
}

// versionKV extracts facts from free-form "show version" output.
func versionKV(cmd string) Recipe {
	return Recipe{Command: cmd, Shape: processor.ShapeKeyValue, Processors: []string{dropEmpty, processor.ProcessorTypeVersionFacts}}
}

func table(cmd string) Recipe {
	return Recipe{Command: cmd, Shape: processor.ShapeTable, Processors: []string{dropEmpty, banner}}
}

func lines(cmd string) Recipe {
	return Recipe{Command: cmd, Shape: processor.ShapeLines, Processors: []string{dropEmpty, trim}}
}

func text(cmd string) Recipe {
	return Recipe{Command: cmd, Shape: processor.ShapeText, Processors: []string{dropBang, dropEmpty}}
}

// catalog is the closed set of getters, in the order they are advertised.
var catalog = []Getter{
	{
		Name:        "facts",
		Description: "Basic device facts: hostname, model, OS version, serial number, uptime",
		Recipes: map[string]Recipe{
			"ios":   versionKV("show version"),
			"nxos":  versionKV("show version"),
			"eos":   kv("show version"),
			"junos": kv("show version"),
			"linux": kv("hostnamectl"),
		},
	},
	{
		Name:        "interfaces",
		Description: "Interface list with status",
		Recipes: map[string]Recipe{
			"ios":   table("show interfaces status"),
			"nxos":  table("show interface status"),
			"eos":   table("show interfaces status"),
			"junos": table("show interfaces terse"),
			"linux": lines("ip -brief link show"),
		},
	},
	{
		Name:        "interfaces_ip",
		Description: "IP addresses configured on interfaces",
		Recipes: map[string]Recipe{
			"ios":   table("show ip interface brief"),
			"nxos":  lines("show ip interface brief"),
			"eos":   table("show ip interface brief"),
			"junos": table("show interfaces terse"),
			"linux": lines("ip -brief address show"),
		},
	},
	{
		Name:        "arp_table",
		Description: "ARP table entries",
		Recipes: map[string]Recipe{
			"ios":   table("show ip arp"),
			"nxos":  lines("show ip arp"),
			"eos":   table("show ip arp"),
			"junos": table("show arp no-resolve"),
			"linux": lines("ip neigh show"),
		},
	},
	{
		Name:        "lldp_neighbors",
		Description: "LLDP neighbors per local interface",
		Recipes: map[string]Recipe{
			"ios":   table("show lldp neighbors"),
			"nxos":  table("show lldp neighbors"),
			"eos":   table("show lldp neighbors"),
			"junos": table("show lldp neighbors"),
		},
	},
	{
		Name:        "config",
		Description: "Running configuration",
		Recipes: map[string]Recipe{
			"ios":   text("show running-config"),
			"nxos":  text("show running-config"),
			"eos":   text("show running-config"),
			"junos": text("show configuration | display set"),
		},
	},
	{
		Name:        "users",
		Description: "Locally configured users",
		Recipes: map[string]Recipe{
			"ios":   lines("show running-config | include ^username"),
			"nxos":  lines("show running-config | include ^username"),
			"eos":   lines("show running-config | include ^username"),
			"junos": lines("show configuration system login | display set"),
			"linux": lines("getent passwd"),
		},
	},
	{
		Name:        "ntp_servers",
		Description: "Configured NTP servers",
		Recipes: map[string]Recipe{
			"ios":   lines("show running-config | include ^ntp server"),
			"nxos":  lines("show running-config | include ^ntp server"),
			"eos":   lines("show running-config | include ^ntp server"),
			"junos": lines("show configuration system ntp | display set"),
			"linux": lines("chronyc -n sources"),
		},
	},
	{
		Name:        "vlans",
		Description: "VLANs and their member ports",
		Recipes: map[string]Recipe{
			"ios":   table("show vlan brief"),
			"nxos":  table("show vlan brief"),
			"eos":   table("show vlan"),
			"junos": table("show vlans"),
		},
	},
	{
		Name:        "mac_address_table",
		Description: "MAC address table",
		Recipes: map[string]Recipe{
			"ios":   table("show mac address-table"),
			"nxos":  table("show mac address-table"),
			"eos":   table("show mac address-table"),
			"junos": table("show ethernet-switching table"),
		},
	},
	{
		Name:        "environment",
		Description: "Environment sensors: power, fans, temperature",
		Recipes: map[string]Recipe{
			"ios":   text("show environment all"),
			"nxos":  text("show environment"),
			"eos":   text("show environment all"),
			"junos": table("show chassis environment"),
			"linux": text("sensors"),
		},
	},
}
