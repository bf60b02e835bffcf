package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

const (
	SchemeHTTP   = "http"
	LoopbackHost = "127.0.0.1"
)

// BackendCommand is the resolved way to launch the backend. It is not
// modified after the locator produces it.
type BackendCommand struct {
	Path    string
	Args    []string
	Dir     string
	Bundled bool
}

func (c BackendCommand) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

// Origin is the address the UI loader is pointed at once the backend is ready.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

func NewLoopbackOrigin(port int) Origin {
	return Origin{Scheme: SchemeHTTP, Host: LoopbackHost, Port: port}
}

// Address returns host:port.
func (o Origin) Address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Origin) String() string {
	scheme := o.Scheme
	if scheme == "" {
		scheme = SchemeHTTP
	}
	return fmt.Sprintf("%s://%s", scheme, o.Address())
}

// URL joins the origin with an absolute path such as "/health".
func (o Origin) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return o.String() + path
}

// ExitStatus describes how the backend process terminated. Signal is empty
// when the process exited on its own.
type ExitStatus struct {
	Code     int
	Signal   string
	Expected bool
	Err      error
}

func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == "" && s.Err == nil
}

func (s ExitStatus) String() string {
	signal := s.Signal
	if signal == "" {
		signal = "none"
	}
	return fmt.Sprintf("exit code: %d, signal: %s", s.Code, signal)
}
