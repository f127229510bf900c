package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"ukernel/pkg/fdtable"
)

func newRunCmd(flags *kernelFlags) *cobra.Command {
	var (
		dumpDir string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run IMAGE [ARGS...]",
		Short: "Boot IMAGE as the root process and wait for the kernel to stop",
		Example: `  ukernel run multiproc.coff
  ukernel run echo.coff hello world
  ukernel run --dump out read.coff`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			k, err := bootKernel(cfg, fdtable.NewConsole(os.Stdin, cmd.OutOrStdout()))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			root, err := k.Boot(args[0], args[1:]...)
			if err != nil {
				return err
			}

			code := ExitOK
			if err := k.Wait(ctx); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ukernel: %s, halting\n", err)
				code = ExitInterrupt
			} else {
				select {
				case <-root.Done():
					code, _ = root.ExitStatus()
				case <-time.After(time.Second):
				}
			}

			shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = k.Shutdown(shutdown)

			if dumpDir != "" {
				if err := k.Store().Export(dumpDir); err != nil {
					return fmt.Errorf("dump: %w", err)
				}
			}

			if code != ExitOK {
				return &exitStatus{code: code}
			}
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&dumpDir, "dump", "", "write the file store to `DIR` after the run")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "halt the kernel after this long (0 = no limit)")
	return cmd
}
