package proxy

// DefaultLocalAddr is used for hosts lines when no local address is set.
const DefaultLocalAddr = "127.0.0.1"

// HostsLines returns one hosts-file line "<addr> <name>" per virtual host so
// that clients can resolve the proxied names to this machine.
func HostsLines(localAddr string, hosts []VirtualHost) []string {
	if localAddr == "" {
		localAddr = DefaultLocalAddr
	}
	lines := make([]string, 0, len(hosts))
	for _, h := range hosts {
		lines = append(lines, localAddr+" "+h.Name)
	}
	return lines
}
