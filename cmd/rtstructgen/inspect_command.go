package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"rtstructgen/pkg/rtstruct"
)

func newInspectCommand() *cobra.Command {
	var showContours bool

	cmd := &cobra.Command{
		Use:         "inspect FILE",
		Short:       "Summarize a generated RT structure set",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rtstruct.Inspect(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:        %s\n", s.Path)
			fmt.Fprintf(out, "Patient:     %s\n", s.PatientID)
			fmt.Fprintf(out, "Structure:   %s (RGB %d,%d,%d)\n", s.ROIName, s.Color[0], s.Color[1], s.Color[2])
			fmt.Fprintf(out, "Series:      %s\n", s.SeriesInstanceUID)
			fmt.Fprintf(out, "References:  %s\n", s.ReferencedSeriesUID)
			fmt.Fprintf(out, "Contours:    %d\n", len(s.Contours))

			if !showContours || len(s.Contours) == 0 {
				return nil
			}
			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"#", "Z (mm)", "Points", "Type", "Image"})
			for i, c := range s.Contours {
				tw.AppendRow(table.Row{i + 1, fmt.Sprintf("%.2f", c.Z), c.Points, c.GeometricType, c.ReferencedSOPInstanceUID})
			}
			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 2, Align: text.AlignRight},
				{Number: 3, Align: text.AlignRight},
			})
			fmt.Fprintln(out, tw.Render())
			return nil
		},
	}
	cmd.Flags().BoolVar(&showContours, "contours", false, "List every contour")
	return cmd
}
