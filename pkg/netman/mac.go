package netman

import (
	"fmt"
	"strings"
)

// FormatMAC renders raw MAC bytes as lowercase hex pairs joined by
// delimiter. An empty delimiter yields the compact form used for the
// default access point name.
func FormatMAC(mac []byte, delimiter string) string {
	var b strings.Builder
	for i, octet := range mac {
		if i > 0 {
			b.WriteString(delimiter)
		}
		fmt.Fprintf(&b, "%02x", octet)
	}
	return b.String()
}
