package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/garyjia/logistics-console/internal/application/service"
)

func printForm(w io.Writer, snap service.FormSnapshot) error {
	h := snap.Header
	fmt.Fprintf(w, "%s #%s  %s  [%s]\n", h.Title, h.ID, h.Series, snap.Status.Label)
	if snap.Error != "" {
		fmt.Fprintf(w, "load failed at %s: %s\n", snap.FailedStage, snap.Error)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, kv := range [][2]string{
		{"Posting date", h.PostingDate},
		{"Delivery date", h.DeliveryDate},
		{"Customer", h.Customer},
		{"Supplier", h.Supplier},
		{"Currency", h.Currency},
		{"Service type", h.ServiceType},
		{"Collection", h.CollectionAddress},
		{"Destination", h.DestinationAddress},
	} {
		fmt.Fprintf(tw, "%s:\t%s\n", kv[0], kv[1])
	}
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "#\tItem\tUOM\tCertification\tQty\tRate\tAmount")
	for _, li := range snap.Lines {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			li.SrNo, li.ItemName, li.UOMName, li.CertificationName,
			li.Quantity.String(), li.Rate.String(), li.Amount.StringFixed(2))
	}
	fmt.Fprintf(tw, "\tTotal\t\t\t%s\t\t%s\n", snap.Totals.Quantity.String(), snap.Totals.Amount.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(snap.Status.Actions) > 0 {
		fmt.Fprintf(w, "actions: %v\n", snap.Status.Actions)
	}
	return nil
}
