package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const historyLimit = 20

var (
	errTryOnUsage  = errors.New("usage: tryon <person-image> <garment-image> <output-file>")
	errOutfitUsage = errors.New("usage: outfit <json-file>")
)

func (a *App) TryOn(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return errTryOnUsage
	}
	fmt.Fprintln(a.out, "Generating try-on, this can take a minute...")

	res, err := a.styling.TryOn(ctx, args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Saved %s (%d bytes, job %s)\n", res.OutputPath, res.Size, res.Job.JobID)
	if res.Job.Entitlement != nil {
		fmt.Fprintln(a.out, formatEntitlement(*res.Job.Entitlement))
	}
	return nil
}

func (a *App) Outfit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errOutfitUsage
	}
	res, err := a.styling.Outfit(ctx, args[0])
	if err != nil {
		return err
	}

	pretty, err := json.MarshalIndent(res.Result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(pretty))
	if res.Entitlement != nil {
		fmt.Fprintln(a.out, formatEntitlement(*res.Entitlement))
	}
	return nil
}

func (a *App) History(ctx context.Context) error {
	entries, err := a.styling.History(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.out, "No try-ons yet")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(a.out, "%s  %-9s %s + %s -> %s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Status, e.PersonPath, e.GarmentPath, e.OutputPath)
	}
	return nil
}
