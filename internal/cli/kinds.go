package cli

import (
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/odm/internal/attr"
)

// KindInfo describes one registered attribute kind.
type KindInfo struct {
	Name         string            `json:"name"`
	ValueType    string            `json:"valueType"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Aliases      map[string]string `json:"aliases,omitempty"`
}

// NewKindsCommand creates the kinds command.
func NewKindsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "kinds",
		Short:         "List the attribute kinds declarations can use",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.ensure(cmd); err != nil {
				return err
			}
			kinds := describeKinds(attr.Builtins())
			return rootOpts.formatter(cmd).Success(kinds, kindsText(kinds))
		},
	}
}

func describeKinds(r *attr.Registry) []KindInfo {
	var out []KindInfo
	for _, k := range r.Kinds() {
		info := KindInfo{Name: k.Name, ValueType: string(k.ValueType), Aliases: k.Aliases}
		for _, c := range k.Capabilities() {
			info.Capabilities = append(info.Capabilities, string(c))
		}
		out = append(out, info)
	}
	return out
}

func kindsText(kinds []KindInfo) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Kind", "Value", "Capabilities", "Aliases"})
	for _, k := range kinds {
		aliases := make([]string, 0, len(k.Aliases))
		for a, opt := range k.Aliases {
			aliases = append(aliases, a+"->"+opt)
		}
		sort.Strings(aliases)
		t.AppendRow(table.Row{k.Name, k.ValueType, strings.Join(k.Capabilities, ", "), strings.Join(aliases, " ")})
	}
	return t.Render()
}
