package dist

import (
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/forgebuild/forge/pathutil"
)

// Advertise creates a uniquely-named, zero-byte... in practice address-
// carrying file under brokerageDir, naming this worker for discovery, per
// spec.md §4.6's "each worker advertises itself by creating a uniquely-
// named file" and §6's "Brokerage directory... each worker creates a
// zero-byte file named by its advertised network address." forge stores
// the address as the file's content rather than its name, since addresses
// can carry characters a filename can't; the name itself only needs to be
// unique, for which a uuid suffices.
//
// The returned func removes the advertisement; callers should defer it.
func Advertise(brokerageDir, addr string) (func() error, error) {
	if err := os.MkdirAll(brokerageDir, 0755); err != nil {
		return nil, xerrors.Errorf("dist: advertise: %w", err)
	}
	name := filepath.Join(brokerageDir, uuid.NewString())
	if err := pathutil.AtomicWriteFile(name, []byte(addr), 0644); err != nil {
		return nil, xerrors.Errorf("dist: advertise: %w", err)
	}
	return func() error { return os.Remove(name) }, nil
}

// Discover lists every brokerage directory in paths and returns the
// advertised worker addresses, excluding any that resolve to a local
// address (spec.md §4.6: "the client lists the directory and excludes
// local-host addresses").
func Discover(paths []string) ([]string, error) {
	var out []string
	for _, dir := range paths {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, xerrors.Errorf("dist: discover %q: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				continue // a racing deletion between ReadDir and ReadFile is not an error
			}
			addr := strings.TrimSpace(string(data))
			if addr == "" || isLocalAddr(addr) {
				continue
			}
			out = append(out, addr)
		}
	}
	return out, nil
}

// isLocalAddr reports whether host:port in addr names an address this host
// itself owns, so a worker's own advertisement is never raced against.
func isLocalAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range ifaceAddrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipNet.IP.String() == host {
			return true
		}
	}
	return false
}
