package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/smazurov/vspfilter/internal/logging"
	"github.com/smazurov/vspfilter/internal/vsp"
	"github.com/spf13/cobra"
)

// probeReport is what probe prints.
type probeReport struct {
	Status   vsp.Status        `json:"status"`
	Entities []vsp.GraphEntity `json:"entities"`
}

// CreateProbeCmd creates the probe command.
func CreateProbeCmd() *cobra.Command {
	var devices deviceFlags
	var logs logFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Locate the converter and print its stages and media graph",
		Long: `Opens the input and output stages, checks they belong to the same VSP instance ` +
			`and lists the media entities and links. No link or format is changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Initialize(logs.config())

			in, out, err := devices.resolve()
			if err != nil {
				return err
			}
			session := vsp.NewSession(vsp.Options{InputDevice: in, OutputDevice: out})
			defer session.Teardown()

			report, err := probe(session)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	devices.register(cmd)
	logs.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")

	return cmd
}

// prober is the part of a session probe needs.
type prober interface {
	Setup() error
	Status() vsp.Status
	Graph() ([]vsp.GraphEntity, error)
}

func probe(s prober) (probeReport, error) {
	if err := s.Setup(); err != nil {
		return probeReport{}, err
	}
	entities, err := s.Graph()
	if err != nil {
		return probeReport{}, err
	}
	return probeReport{Status: s.Status(), Entities: entities}, nil
}

func printReport(w io.Writer, r probeReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "IP:\t%s\n", r.Status.IPName)
	fmt.Fprintf(tw, "Media:\t%s\n", r.Status.MediaDevice)
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "STAGE\tDEVICE\tENTITY\tSUBDEV")
	for _, st := range r.Status.Stages {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Name, st.DevicePath, st.Entity, st.SubdevPath)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ID\tENTITY\tLINKS")
	for _, e := range r.Entities {
		links := make([]string, 0, len(e.Links))
		for _, l := range e.Links {
			links = append(links, linkString(l))
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", e.ID, e.Name, strings.Join(links, ", "))
	}
	return tw.Flush()
}

func linkString(l vsp.GraphLink) string {
	s := fmt.Sprintf("%d->%s:%d", l.SourcePad, l.Sink, l.SinkPad)
	switch {
	case l.Immutable:
		s += " [immutable]"
	case l.Enabled:
		s += " [enabled]"
	}
	return s
}
