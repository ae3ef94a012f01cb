// Package idgen provides id generation helpers: event/command ids, the
// content-addressed CartItem instance id, and a machine hardware id used by
// the credential store's hardware-binding check.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a fresh random UUID, used for event_id, command_id, and
// request/correlation ids throughout the bus and cloud sync protocols.
func NewID() string {
	return uuid.NewString()
}

// InstanceID derives the content-addressed identity of a CartItem from its
// product, spec, options, and discount provenance — spec §3's "instance_id
// determinism" invariant: two items with the same hash MUST merge.
func InstanceID(productID, spec string, optionNames []string, manualDiscountPercent float64, ruleIDs []string) string {
	sortedOpts := append([]string(nil), optionNames...)
	sort.Strings(sortedOpts)
	sortedRules := append([]string(nil), ruleIDs...)
	sort.Strings(sortedRules)

	data := fmt.Sprintf("%s|%s|%s|%.4f|%s",
		productID, spec, strings.Join(sortedOpts, ","), manualDiscountPercent, strings.Join(sortedRules, ","))
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:16])
}

// HardwareID derives a stable machine identifier from the first non-loopback
// MAC address and the hostname, hashed so the raw MAC never leaves the
// process. Used by the credential store's boot self-check (spec §4.7 step
// 4) to compare against the hardware-ID extension baked into edge_cert.pem.
func HardwareID() (string, error) {
	hostname, _ := os.Hostname()

	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("idgen: enumerate interfaces: %w", err)
	}

	var mac string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		mac = iface.HardwareAddr.String()
		break
	}
	if mac == "" {
		mac = "no-mac-" + hostname
	}

	sum := sha256.Sum256([]byte(hostname + "|" + mac))
	return hex.EncodeToString(sum[:]), nil
}
