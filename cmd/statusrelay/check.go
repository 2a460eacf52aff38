package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hazz-dev/statusrelay/internal/fetcher"
	"github.com/hazz-dev/statusrelay/internal/registry"
	"github.com/hazz-dev/statusrelay/internal/report"
)

func runChecks(ctx context.Context, out io.Writer, reg *registry.Registry, f fetcher.Fetcher, target string) error {
	endpoints, err := reg.Resolve(target)
	var unknown *registry.UnknownTargetError
	if errors.As(err, &unknown) {
		fmt.Fprintln(out, report.UnknownTarget(unknown, report.Text))
		return unknown
	}
	if len(endpoints) == 0 {
		fmt.Fprintln(out, report.NoEndpoints())
		return nil
	}

	outcomes := fetcher.FetchAll(ctx, f, endpoints)
	fmt.Fprintln(out, report.Render(outcomes, report.Text))

	failed := 0
	for _, o := range outcomes {
		if !o.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d endpoints failed", failed, len(outcomes))
	}
	return nil
}
