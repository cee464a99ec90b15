package netaccess

import (
	"fmt"
	"regexp"
)

var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}[0-9A-Fa-f]{2}$`)

// ValidMAC reports whether mac is a colon or dash separated 48-bit hardware address.
func ValidMAC(mac string) bool {
	return macPattern.MatchString(mac)
}

// BlockCommand returns the uci sequence adding mac to the anomaly_block deny-list. The address is
// removed first so the list never holds it twice.
func BlockCommand(mac string) string {
	return fmt.Sprintf(
		"uci -q del_list firewall.anomaly_block.src_mac='%[1]s'; "+
			"uci add_list firewall.anomaly_block.src_mac='%[1]s' && "+
			"uci set firewall.anomaly_block.enabled='1' && "+
			"uci commit firewall && /etc/init.d/firewall restart", mac)
}

// AllowCommand returns the uci sequence removing mac from the deny-list. The rule is disabled once
// the list is empty; the change is committed and the firewall reloaded either way.
func AllowCommand(mac string) string {
	return fmt.Sprintf(
		"uci -q del_list firewall.anomaly_block.src_mac='%s'; "+
			`if [ -z "$(uci -q get firewall.anomaly_block.src_mac)" ]; then `+
			"uci set firewall.anomaly_block.enabled='0'; fi; "+
			"uci commit firewall && /etc/init.d/firewall restart", mac)
}
