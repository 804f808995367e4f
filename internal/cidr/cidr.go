// Package cidr implements the IPv4 network arithmetic the allocator needs:
// parsing, canonical printing, splitting a block into its two halves,
// finding the containing supernet, and deciding which half a block sits on.
package cidr

import (
	"fmt"
	"net"
)

// Network is a canonicalized IPv4 CIDR: the network address with host bits
// zeroed, plus its prefix length.
type Network struct {
	ip     net.IP // always 4 bytes, network address
	prefix int    // 0-32
}

// Parse parses text like "10.0.0.0/16" into its canonical Network,
// zeroing any host bits the caller's text didn't already zero.
func Parse(text string) (Network, error) {
	ip, ipnet, err := net.ParseCIDR(text)
	if err != nil {
		return Network{}, fmt.Errorf("cidr: invalid network %q: %w", text, err)
	}
	if ip4 := ip.To4(); ip4 == nil {
		return Network{}, fmt.Errorf("cidr: %q is not an IPv4 network", text)
	}
	ones, bits := ipnet.Mask.Size()
	if bits != 32 {
		return Network{}, fmt.Errorf("cidr: %q is not an IPv4 network", text)
	}
	return Network{ip: ipnet.IP.To4(), prefix: ones}, nil
}

// MustParse is Parse but panics on error; useful for literal networks in
// tests and in code paths that have already validated the text.
func MustParse(text string) Network {
	n, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return n
}

// FromAddressAndPrefix builds the canonical network containing ip at the
// given prefix length, zeroing host bits.
func FromAddressAndPrefix(ip net.IP, prefix int) Network {
	mask := net.CIDRMask(prefix, 32)
	return Network{ip: ip.To4().Mask(mask), prefix: prefix}
}

// String renders the canonical text form, e.g. "10.0.0.0/16".
func (n Network) String() string {
	return fmt.Sprintf("%s/%d", n.ip.String(), n.prefix)
}

// PrefixLength returns the prefix length, 0-32.
func (n Network) PrefixLength() int {
	return n.prefix
}

// Address returns the network address (host bits zeroed).
func (n Network) Address() net.IP {
	out := make(net.IP, 4)
	copy(out, n.ip)
	return out
}

// Equal reports whether two networks are the same block.
func (n Network) Equal(other Network) bool {
	return n.prefix == other.prefix && n.ip.Equal(other.ip)
}

// Zero reports whether n is the unset zero value.
func (n Network) Zero() bool {
	return n.ip == nil
}

// Supernet returns the /n-1 network containing n. Undefined for /0.
func (n Network) Supernet() Network {
	if n.prefix == 0 {
		panic("cidr: supernet of /0 is undefined")
	}
	return FromAddressAndPrefix(n.ip, n.prefix-1)
}

// Subnets returns the left then right /n+1 halves of n, in that order.
// Undefined for /32.
func (n Network) Subnets() [2]Network {
	if n.prefix == 32 {
		panic("cidr: subnets of /32 are undefined")
	}
	left := FromAddressAndPrefix(n.ip, n.prefix+1)
	rightIP := make(net.IP, 4)
	copy(rightIP, n.ip)
	byteIdx := n.prefix / 8
	bitIdx := uint(7 - n.prefix%8)
	rightIP[byteIdx] |= 1 << bitIdx
	right := FromAddressAndPrefix(rightIP, n.prefix+1)
	return [2]Network{left, right}
}

// SubnetOf reports whether n is contained in other, strictly or equal.
func (n Network) SubnetOf(other Network) bool {
	if n.prefix < other.prefix {
		return false
	}
	mask := net.CIDRMask(other.prefix, 32)
	return n.ip.Mask(mask).Equal(other.ip)
}

// IsLeft reports whether n is the left half of its supernet, i.e.
// n == n.Supernet().Subnets()[0]. Well-defined for prefix 1-32; unused
// for /0, which has no supernet.
func (n Network) IsLeft() bool {
	if n.prefix == 0 {
		panic("cidr: is-left of /0 is undefined")
	}
	byteIdx := (n.prefix - 1) / 8
	bitIdx := uint(7 - (n.prefix-1)%8)
	return n.ip[byteIdx]&(1<<bitIdx) == 0
}

// WithPrefix returns the canonical network at the given prefix length
// sharing n's network address, as used when carving a reservation out of
// a free half (spec.md §4.3.1 step 3: "same network address, prefix
// length = size").
func (n Network) WithPrefix(prefix int) Network {
	return FromAddressAndPrefix(n.ip, prefix)
}

// Rootline returns the chain of networks from root down to n inclusive,
// root-first. root must be a supernet-of-or-equal-to n.
func Rootline(root, n Network) []Network {
	if !n.SubnetOf(root) {
		panic("cidr: rootline: n is not contained in root")
	}
	chain := make([]Network, 0, n.prefix-root.prefix+1)
	current := n
	for current.prefix >= root.prefix {
		chain = append(chain, current)
		if current.prefix == root.prefix {
			break
		}
		current = current.Supernet()
	}
	// reverse into root-first order
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
