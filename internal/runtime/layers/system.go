package layers

import (
	"os"
	"runtime"
	"runtime/debug"
)

// SystemLayer holds process properties captured at construction.
type SystemLayer struct {
	entries *ordered
}

// NewSystemLayer snapshots the process properties. Properties the platform
// cannot report are left out.
func NewSystemLayer() *SystemLayer {
	o := newOrdered()
	o.set("go.version", runtime.Version())
	o.set("os.name", runtime.GOOS)
	o.set("os.arch", runtime.GOARCH)
	o.set("go.compiler", runtime.Compiler)
	o.set("process.pid", os.Getpid())
	if exe, err := os.Executable(); err == nil {
		o.set("process.executable", exe)
	}
	if wd, err := os.Getwd(); err == nil {
		o.set("user.dir", wd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		o.set("user.home", home)
	}
	if host, err := os.Hostname(); err == nil {
		o.set("host.name", host)
	}
	o.set("path.separator", string(os.PathListSeparator))
	o.set("file.separator", string(os.PathSeparator))
	if info, ok := debug.ReadBuildInfo(); ok {
		o.set("build.path", info.Path)
		o.set("build.version", info.Main.Version)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision", "vcs.time", "vcs.modified":
				o.set("build."+s.Key, s.Value)
			}
		}
	}
	return &SystemLayer{entries: o}
}

func (s *SystemLayer) Name() string               { return "system" }
func (s *SystemLayer) Kind() Kind                 { return KindSystem }
func (s *SystemLayer) Get(key string) (any, bool) { return s.entries.get(key) }
func (s *SystemLayer) Keys() []string             { return s.entries.names() }
