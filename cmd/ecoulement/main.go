/*
Command ecoulement simulates steady-state heat diffusion over a PNG map.

The red channel of the source image seeds the heat bias, green the
starting temperature and blue the conduction factor. The solve runs as a
group of workers over row bands: locally as goroutines over an
in-process fabric, or distributed with one process per rank over TCP.
The collector rank prints the run statistics, writes the gradient image
and, on request, a convergence chart and an MJPEG movie of the run.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/comm"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/configs"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/ctc"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/deploy"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/render"
	"github.com/calculquebec/cq-formation-ecoulement-chaleur/solver"
)

// Exit codes follow the reference program: 1 usage, 2 input or run
// failure, 3 output failure after a completed run.
const (
	exitUsage  = 1
	exitInput  = 2
	exitOutput = 3
)

func main() {
	var (
		imagePath  = flag.String("image", "", "source PNG (red=heat, green=temperature, blue=conduction)")
		confPath   = flag.String("config", "", "JSON configuration file")
		outPath    = flag.String("out", "", "result image path")
		chartPath  = flag.String("chart", "", "convergence chart path")
		moviePath  = flag.String("movie", "", "MJPEG movie path")
		frameEvery = flag.Int("frame-every", 0, "iterations between movie frames")
		label      = flag.Bool("label", false, "burn run statistics into the result image")

		workers   = flag.Int("workers", 0, "worker count for local mode")
		noise     = flag.Float64("noise", 0, "additive bias in the neighbor-average target")
		threshold = flag.Float64("threshold", 0, "metric value below which the run converged")
		maxIter   = flag.Int("max-iter", 0, "hard iteration cap")

		mode      = flag.String("mode", "local", "local or tcp")
		rank      = flag.Int("rank", 0, "this process's rank (tcp mode)")
		basePort  = flag.Int("base-port", 0, "first TCP port, rank r listens at base+r")
		hostsFlag = flag.String("hosts", "", "comma-separated host addresses, one per rank (tcp mode)")
		doDeploy  = flag.Bool("deploy", false, "launch the other ranks over SSH (tcp mode, collector only)")
		deployCmd = flag.String("deploy-cmd", "ecoulement", "remote worker command prefix for -deploy")
	)
	flag.Parse()

	if *imagePath == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -image fichier.png [options]\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(exitUsage)
	}

	cfg := loadConfig(*confPath)

	// Explicit flags win over the file.
	frameSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Workers = *workers
		case "noise":
			cfg.Noise = float32(*noise)
		case "threshold":
			cfg.Threshold = float32(*threshold)
		case "max-iter":
			cfg.MaxIterations = *maxIter
		case "out":
			cfg.Output = *outPath
		case "chart":
			cfg.Chart = *chartPath
		case "movie":
			cfg.Movie = *moviePath
		case "frame-every":
			cfg.FrameEvery = *frameEvery
			frameSet = true
		case "base-port":
			cfg.BasePort = *basePort
		}
	})

	grid, err := loadGrid(*imagePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitInput)
	}

	opts := solver.Options{
		Noise:         cfg.Noise,
		Threshold:     cfg.Threshold,
		MaxIterations: cfg.MaxIterations,
	}

	collector := *mode == "local" || *rank == solver.Collector

	// The snapshot gather is a collective, so the cadence is part of the
	// group contract: every rank must run with the same FrameEvery. The
	// collector turns it on for a movie; deployed workers receive it as
	// an explicit -frame-every on their command line.
	if cfg.Movie != "" || frameSet {
		opts.FrameEvery = cfg.FrameEvery
	}

	var movie *render.Movie
	if cfg.Movie != "" && collector {
		movie, err = render.NewMovie(cfg.Movie, grid.Width(), grid.Height(), 4)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(exitInput)
		}
		opts.OnFrame = func(g *ctc.Grid, s solver.State) {
			if err := movie.AddFrame(g); err != nil {
				log.Printf("[movie] frame at iteration %d: %v", s.Iterations, err)
			}
		}
	}

	var (
		final *ctc.Grid
		res   solver.Result
	)
	switch *mode {
	case "local":
		final, res, err = runLocal(grid, cfg, opts)
	case "tcp":
		final, res, err = runTCP(grid, cfg, opts, *rank, *hostsFlag, *doDeploy, *deployCmd, *imagePath)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q, want local or tcp\n", *mode)
		os.Exit(exitUsage)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitInput)
	}

	if !collector {
		return
	}

	tmin, tmax := final.MinMaxTemperature()
	fmt.Printf("iteration #%d, mean adjustment = %g / 256, t_min = %g, t_max = %g\n",
		res.Iterations, res.Metric*256, tmin, tmax)

	// The simulation result exists whatever happens below; output
	// failures are reported and change only the exit code.
	failed := false

	var labels []string
	if *label {
		labels = []string{
			fmt.Sprintf("iter %d", res.Iterations),
			fmt.Sprintf("delta %.5f", res.Metric),
		}
	}
	if err := writeResult(cfg.Output, final, tmin, tmax, labels); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		failed = true
	}

	if cfg.Chart != "" {
		if err := writeChart(cfg.Chart, res.History); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			failed = true
		}
	}
	if movie != nil {
		if err := movie.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			failed = true
		}
	}
	if failed {
		os.Exit(exitOutput)
	}
}

func loadConfig(path string) configs.Config {
	if path == "" {
		return configs.Defaults()
	}
	cfg, err := configs.Read(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitInput)
	}
	return cfg
}

func loadGrid(path string) (*ctc.Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return render.Decode(f)
}

func runLocal(grid *ctc.Grid, cfg configs.Config, opts solver.Options) (*ctc.Grid, solver.Result, error) {
	final, results, err := solver.RunLocal(grid, cfg.Workers, opts)
	if err != nil {
		return nil, solver.Result{}, err
	}
	return final, results[solver.Collector], nil
}

func runTCP(grid *ctc.Grid, cfg configs.Config, opts solver.Options,
	rank int, hostsFlag string, doDeploy bool, deployCmd, imagePath string) (*ctc.Grid, solver.Result, error) {

	hosts := splitHosts(hostsFlag, cfg)
	if len(hosts) == 0 {
		return nil, solver.Result{}, fmt.Errorf("tcp mode needs -hosts or Hosts in the configuration")
	}

	if doDeploy && rank == solver.Collector {
		if len(cfg.Hosts) != len(hosts) {
			return nil, solver.Result{}, fmt.Errorf("deploy needs SSH credentials for all %d ranks in the configuration", len(hosts))
		}
		command := deployCommand(deployCmd, imagePath, hosts, cfg, opts.FrameEvery)
		results := deploy.Launch(cfg.Hosts[1:], 1, command, time.Minute)
		if err := checkLaunch(results, len(hosts)-1); err != nil {
			return nil, solver.Result{}, err
		}
	}

	mesh, err := comm.NewMesh(rank, len(hosts), cfg.BasePort, hosts, "ecoulement")
	if err != nil {
		return nil, solver.Result{}, err
	}
	defer mesh.Close()

	res, err := solver.Run(mesh, grid, opts)
	if err != nil {
		return nil, solver.Result{}, err
	}
	return grid, res, nil
}

// deployCommand builds the worker command line. Everything that shapes
// the group's lockstep, the run parameters and the snapshot cadence in
// particular, must be carried here so every rank runs the same contract.
func deployCommand(deployCmd, imagePath string, hosts []string, cfg configs.Config, frameEvery int) string {
	return fmt.Sprintf("%s -mode tcp -image %s -hosts %s -base-port %d -noise %g -threshold %g -max-iter %d -frame-every %d",
		deployCmd, imagePath, strings.Join(hosts, ","), cfg.BasePort,
		cfg.Noise, cfg.Threshold, cfg.MaxIterations, frameEvery)
}

// checkLaunch turns launch failures into an error before the mesh dial,
// instead of letting a dead rank surface as a connect timeout.
func checkLaunch(results []deploy.Result, want int) error {
	for _, r := range results {
		if r.Err != nil {
			return fmt.Errorf("launching rank %d on %s: %w", r.Rank, r.Addr, r.Err)
		}
	}
	if len(results) != want {
		return fmt.Errorf("launched %d of %d workers before the deadline", len(results), want)
	}
	return nil
}

func splitHosts(hostsFlag string, cfg configs.Config) []string {
	if hostsFlag != "" {
		return strings.Split(hostsFlag, ",")
	}
	hosts := make([]string, 0, len(cfg.Hosts))
	for _, h := range cfg.Hosts {
		hosts = append(hosts, h.Address)
	}
	return hosts
}

func writeResult(path string, g *ctc.Grid, tmin, tmax float32, labels []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.Encode(f, g, tmin, tmax, labels...); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeChart(path string, history []float32) error {
	// A run can legitimately converge on its first sweep; there is no
	// line to draw then, and that is not an output failure.
	if len(history) < 2 {
		log.Printf("[chart] run ended after %d iteration(s), skipping %s", len(history), path)
		return nil
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.WriteChart(f, history); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
