package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/smazurov/vspfilter/internal/config"
	"github.com/smazurov/vspfilter/internal/events"
	"github.com/smazurov/vspfilter/internal/logging"
	"github.com/smazurov/vspfilter/internal/metrics/collectors"
	"github.com/smazurov/vspfilter/internal/metrics/exporters"
	"github.com/smazurov/vspfilter/internal/vsp"
	"github.com/spf13/cobra"
)

// convertJob is one parsed convert invocation.
type convertJob struct {
	in        vsp.Format
	inW, inH  int
	out       vsp.Format
	outW      int
	outH      int
	outStride int
	frames    int
	// skip timed out frames instead of stopping
	keepGoing bool
	// log an xxhash64 digest of every output frame
	checksum bool
}

// request builds the per-frame request and the buffers backing it.
func (j convertJob) request() (vsp.Request, [][]byte, [][]byte, error) {
	inPlanes, err := vsp.AllocPlanes(j.in, j.inW, j.inH)
	if err != nil {
		return vsp.Request{}, nil, nil, err
	}

	// A padded stride widens every output line.
	allocW := j.outW
	if j.outStride > 0 {
		allocW = j.outStride / j.out.PixelStride()
	}
	outPlanes, err := vsp.AllocPlanes(j.out, allocW, j.outH)
	if err != nil {
		return vsp.Request{}, nil, nil, err
	}

	return vsp.Request{
		In:        vsp.Frame{Format: j.in, Width: j.inW, Height: j.inH, Buffers: vsp.UserPlanes(inPlanes...)},
		Out:       vsp.Frame{Format: j.out, Width: j.outW, Height: j.outH, Buffers: vsp.UserPlanes(outPlanes...)},
		OutStride: j.outStride,
	}, inPlanes, outPlanes, nil
}

// converter is the part of a session convert needs.
type converter interface {
	Convert(ctx context.Context, req vsp.Request) (vsp.Result, error)
}

// runStats counts the frames of one run.
type runStats struct {
	written int
	failed  int
	busy    time.Duration // summed conversion time of written frames
}

func (s runStats) avgDuration() time.Duration {
	if s.written == 0 {
		return 0
	}
	return s.busy / time.Duration(s.written)
}

// run converts frames from r to w until the frame count is reached, r is
// exhausted or ctx is canceled.
func (j convertJob) run(ctx context.Context, s converter, r io.Reader, w io.Writer, logger *slog.Logger) (runStats, error) {
	var stats runStats
	req, inPlanes, outPlanes, err := j.request()
	if err != nil {
		return stats, err
	}

	digest := xxhash.New()
	dst := w
	if j.checksum {
		dst = io.MultiWriter(w, digest)
	}

	for n := 0; j.frames <= 0 || n < j.frames; n++ {
		if err := ctx.Err(); err != nil {
			return stats, nil
		}

		if err := readFrame(r, inPlanes); err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}
			return stats, fmt.Errorf("frame %d: %w", n, err)
		}

		res, err := s.Convert(ctx, req)
		if err != nil {
			stats.failed++
			if j.keepGoing && vsp.HasCode(err, vsp.ErrCodeConversionTimeout) {
				logger.Warn("Frame timed out, skipping", "frame", n)
				continue
			}
			return stats, fmt.Errorf("frame %d: %w", n, err)
		}

		digest.Reset()
		if err := writeFrame(dst, outPlanes, res.BytesUsed); err != nil {
			return stats, fmt.Errorf("frame %d: %w", n, err)
		}
		stats.written++
		stats.busy += res.Duration
		if j.checksum {
			logger.Info("Frame checksum", "frame", n, "xxhash64", fmt.Sprintf("%016x", digest.Sum64()))
		}
		logger.Debug("Frame converted", "frame", n, "topology", res.Topology, "duration", res.Duration)
	}
	return stats, nil
}

// readFrame fills every plane. A clean end of input before the first byte
// is io.EOF; a truncated frame is io.ErrUnexpectedEOF.
func readFrame(r io.Reader, planes [][]byte) error {
	for i, p := range planes {
		if _, err := io.ReadFull(r, p); err != nil {
			if i > 0 && errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	return nil
}

// writeFrame writes the used part of each plane. Drivers that report no
// usage get the whole plane written.
func writeFrame(w io.Writer, planes [][]byte, used []uint32) error {
	for i, p := range planes {
		n := len(p)
		if i < len(used) && used[i] > 0 && int(used[i]) < n {
			n = int(used[i])
		}
		if _, err := w.Write(p[:n]); err != nil {
			return err
		}
	}
	return nil
}

// CreateConvertCmd creates the convert command.
func CreateConvertCmd() *cobra.Command {
	var devices deviceFlags
	var logs logFlags
	var inFormat, inSize, outFormat, outSize string
	var inputFile, outputFile string
	var metricsAddr, watchConfig string
	var job convertJob

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert raw frames through the VSP",
		Long: `Reads raw frames of the input format from a file (or stdin), converts each through ` +
			`the VSP and writes raw frames of the output format. Planes are stored back to back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if job.in, err = vsp.ParseFormat(inFormat); err != nil {
				return err
			}
			if job.out, err = vsp.ParseFormat(outFormat); err != nil {
				return err
			}
			if job.inW, job.inH, err = parseSize(inSize); err != nil {
				return err
			}
			job.outW, job.outH = job.inW, job.inH
			if outSize != "" {
				if job.outW, job.outH, err = parseSize(outSize); err != nil {
					return err
				}
			}
			// Reject bad geometry before any device is opened.
			if _, err := vsp.PlanTopology(vsp.Request{
				In:        vsp.Frame{Format: job.in, Width: job.inW, Height: job.inH},
				Out:       vsp.Frame{Format: job.out, Width: job.outW, Height: job.outH},
				OutStride: job.outStride,
			}); err != nil {
				return err
			}
			// Logs go to stdout, so frames never do.
			if outputFile == "" {
				return errors.New("--output is required")
			}

			logging.Initialize(logs.config())
			logger := logging.GetLogger("convert")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bus := events.New()
			collector := collectors.NewSessionCollector(bus)
			collector.Start()
			defer collector.Stop()

			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr, logger)
				defer srv.Close()
			}

			if watchConfig != "" {
				watcher := config.NewWatcher(watchConfig, config.LoadLoggingConfig, logging.GetLogger("config"))
				watcher.OnReload(func(c logging.Config) {
					logging.SetLevels(c.Level, c.Modules)
				})
				if err := watcher.Start(); err != nil {
					logger.Warn("Failed to start config watcher, hot-reload disabled", "error", err)
				} else {
					defer func() { _ = watcher.Stop() }()
				}
			}

			inDev, outDev, err := devices.resolve()
			if err != nil {
				return err
			}
			session := vsp.NewSession(vsp.Options{InputDevice: inDev, OutputDevice: outDev, Bus: bus})
			defer session.Teardown()

			r, closeIn, err := openInput(inputFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			defer closeIn()
			w, closeOut, err := openOutput(outputFile)
			if err != nil {
				return err
			}

			logger.Info("Converting",
				"input_device", orAuto(inDev),
				"output_device", orAuto(outDev),
				"in", fmt.Sprintf("%s %dx%d", job.in, job.inW, job.inH),
				"out", fmt.Sprintf("%s %dx%d", job.out, job.outW, job.outH))

			stats, runErr := job.run(ctx, session, r, w, logger)
			if err := closeOut(); err != nil && runErr == nil {
				runErr = err
			}

			logger.Info("Conversion finished",
				"frames", stats.written,
				"failed", stats.failed,
				"avg_duration", stats.avgDuration(),
				"topology", session.Topology())
			return runErr
		},
	}

	devices.register(cmd)
	logs.register(cmd)
	cmd.Flags().StringVar(&inFormat, "in-format", "I420", "Input pixel format")
	cmd.Flags().StringVar(&inSize, "in-size", "", "Input frame size WIDTHxHEIGHT")
	cmd.Flags().StringVar(&outFormat, "out-format", "UYVY", "Output pixel format")
	cmd.Flags().StringVar(&outSize, "out-size", "", "Output frame size WIDTHxHEIGHT, input size when empty")
	cmd.Flags().IntVar(&job.outStride, "out-stride", 0, "Output plane 0 stride in bytes, 0 for packed")
	cmd.Flags().IntVarP(&job.frames, "frames", "n", 0, "Frames to convert, 0 for all")
	cmd.Flags().BoolVar(&job.keepGoing, "skip-timeouts", false, "Skip frames that time out instead of stopping")
	cmd.Flags().BoolVar(&job.checksum, "checksum", false, "Log an xxhash64 digest of every output frame")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "-", "Raw input file, - for stdin")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Raw output file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus /metrics on this address")
	cmd.Flags().StringVar(&watchConfig, "watch-config", "", "TOML file whose [logging] table is applied on change")
	_ = cmd.MarkFlagRequired("in-size")

	return cmd
}

func serveMetrics(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", exporters.HTTPHandler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("Serving metrics", "addr", addr)
	return srv
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return bufio.NewReader(stdin), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewReader(f), func() { f.Close() }, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	bw := bufio.NewWriter(f)
	return bw, func() error {
		if err := bw.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}, nil
}
