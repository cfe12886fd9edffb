package ice

import "net"

// NiceAddress is an IP family tag, address bytes and port. Port 0 means
// "unbound/any". Equality is bit-exact on family+bytes+port (spec.md §3).
type NiceAddress struct {
	IP   net.IP
	Port int
}

// Equal reports whether two addresses are bit-exact.
func (a NiceAddress) Equal(b NiceAddress) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP) && isV4(a.IP) == isV4(b.IP)
}

// IsUnbound reports whether this address has no assigned port yet.
func (a NiceAddress) IsUnbound() bool {
	return a.Port == 0
}

func (a NiceAddress) String() string {
	return net.JoinHostPort(a.IP.String(), itoa(a.Port))
}

// UDPAddr converts a NiceAddress to the stdlib representation used by the
// DatagramSocket capability.
func (a NiceAddress) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: a.IP, Port: a.Port}
}

func addressFromUDPAddr(u *net.UDPAddr) NiceAddress {
	return NiceAddress{IP: u.IP, Port: u.Port}
}

func isV4(ip net.IP) bool {
	return ip.To4() != nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// AddressSet is a duplicate-free set of local interface addresses
// (spec.md §3 AddressSet). Agent does not keep one: Agent.AddLocalAddress
// binds the address it is given directly and does not record it here.
type AddressSet struct {
	addrs []net.IP
}

// Add registers a local interface address for candidate gathering.
func (s *AddressSet) Add(ip net.IP) {
	for _, existing := range s.addrs {
		if existing.Equal(ip) {
			return
		}
	}
	s.addrs = append(s.addrs, ip)
}

// All returns the known local addresses.
func (s *AddressSet) All() []net.IP {
	out := make([]net.IP, len(s.addrs))
	copy(out, s.addrs)
	return out
}

// LocalInterfaceAddresses enumerates usable host addresses the way the
// teacher's legacy HostInterfaces()/localInterfaces() helpers do (skip down
// and loopback interfaces, keep every non-loopback IPv4 address and the
// non-link-local, non-site-local IPv6 ranges RFC 8445 §5.1.1.1 allows).
func LocalInterfaceAddresses() []net.IP {
	var ips []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return ips
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip.To4() == nil && !isRoutableIPv6(ip) {
				continue
			}
			ips = append(ips, ip)
		}
	}
	return ips
}

func isRoutableIPv6(ip net.IP) bool {
	if len(ip) != net.IPv6len || hasZeroV4Prefix(ip) {
		return false // IPv4-compatible IPv6
	}
	if ip[0] == 0xfe && ip[1]&0xc0 == 0xc0 {
		return false // site-local unicast
	}
	return !ip.IsLinkLocalUnicast() && !ip.IsLinkLocalMulticast()
}

func hasZeroV4Prefix(ip net.IP) bool {
	for i := 0; i < 12; i++ {
		if ip[i] != 0 {
			return false
		}
	}
	return true
}
