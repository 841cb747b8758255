package main

import (
	"github.com/spf13/cobra"

	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/service"
)

// deviceFlags 种子设备与凭据参数，未指定的沿用配置
type deviceFlags struct {
	seed           string
	outDir         string
	commands       []string
	username       string
	password       string
	enablePassword string
	keyFile        string
	port           int
}

func (f *deviceFlags) bind(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.seed, "seed", "s", "", "seed switch address")
	fl.StringVarP(&f.outDir, "outdir", "o", "", "shared output directory (default <snapshot.base_dir>/<hostname>)")
	fl.StringSliceVar(&f.commands, "command", nil, "command to collect, repeatable (default platform command list)")
	fl.StringVarP(&f.username, "username", "u", "", "SSH username")
	fl.StringVarP(&f.password, "password", "p", "", "SSH password")
	fl.StringVar(&f.enablePassword, "enable-password", "", "enable password")
	fl.StringVar(&f.keyFile, "key-file", "", "SSH private key file")
	fl.IntVar(&f.port, "port", 0, "SSH port")
}

func (f *deviceFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("username") {
		cfg.Credentials.Username = f.username
	}
	if fl.Changed("password") {
		cfg.Credentials.Password = f.password
	}
	if fl.Changed("enable-password") {
		cfg.Credentials.EnablePassword = f.enablePassword
	}
	if fl.Changed("key-file") {
		cfg.Credentials.KeyFile = f.keyFile
	}
	if fl.Changed("port") {
		cfg.Credentials.Port = f.port
	}
}

func (f *deviceFlags) request() service.CrawlRequest {
	return service.CrawlRequest{
		Seed:      f.seed,
		OutputDir: f.outDir,
		Commands:  f.commands,
	}
}

func newCrawlCmd() *cobra.Command {
	var (
		dev      deviceFlags
		maxDepth int
		allowed  []string
		hostMap  string
		noDNS    bool
	)
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl CDP/LLDP neighbors from a seed switch and document every device",
		Example: `  switchdoc crawl -s 10.0.0.1 --max-depth 2 --allow 10.0.0.0/16 -u admin
  switchdoc crawl -s core1.example.net --hostmap hosts.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			dev.apply(cmd, cfg)
			if cmd.Flags().Changed("hostmap") {
				cfg.Crawl.HostMapFile = hostMap
			}
			if noDNS {
				cfg.Crawl.DNSFallback = false
			}
			defer openHistory(cfg)()

			ctx := cmd.Context()
			observers, closeSinks := openSinks(cfg)
			defer closeSinks()
			svc, pool := newCrawlService(ctx, cfg, observers...)
			defer pool.Close()

			req := dev.request()
			req.AllowedSubnets = allowed
			if cmd.Flags().Changed("max-depth") {
				req.MaxDepth = &maxDepth
			}
			p, err := svc.Params(req)
			if err != nil {
				return err
			}
			_, results, err := svc.Run(ctx, model.TriggerCLI, p)
			if perr := printJSON(results); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	dev.bind(cmd)
	cmd.Flags().IntVarP(&maxDepth, "max-depth", "d", 0, "maximum neighbor hops from the seed")
	cmd.Flags().StringSliceVar(&allowed, "allow", nil, "allowed subnet in CIDR form, repeatable (default: no restriction)")
	cmd.Flags().StringVar(&hostMap, "hostmap", "", "YAML file mapping neighbor names to addresses")
	cmd.Flags().BoolVar(&noDNS, "no-dns", false, "do not resolve neighbor names through DNS")
	return cmd
}

func newCollectCmd() *cobra.Command {
	var (
		dev     deviceFlags
		rawOnly bool
	)
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Document a single switch without following neighbors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := bootstrap()
			if err != nil {
				return err
			}
			dev.apply(cmd, cfg)
			defer openHistory(cfg)()

			ctx := cmd.Context()
			svc, pool := newCrawlService(ctx, cfg)
			defer pool.Close()

			p, err := svc.Params(dev.request())
			if err != nil {
				return err
			}
			results, dir, err := svc.CollectOne(ctx, p, rawOnly)
			if err != nil {
				return err
			}
			if rawOnly {
				return printJSON(map[string]string{"raw_dir": dir})
			}
			return printJSON(results)
		},
	}
	dev.bind(cmd)
	cmd.Flags().BoolVar(&rawOnly, "raw-only", false, "only save raw command outputs")
	return cmd
}
