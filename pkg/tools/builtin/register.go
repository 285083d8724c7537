package builtin

import (
	"github.com/tombee/chatflow/pkg/tools"
)

// Options configures the built-in tool set.
type Options struct {
	Wikipedia WikipediaOptions
}

// Register adds every built-in tool to reg.
func Register(reg *tools.Registry, opts Options) error {
	wiki, err := NewWikipediaTool(opts.Wikipedia)
	if err != nil {
		return err
	}
	return reg.Register(wiki)
}
