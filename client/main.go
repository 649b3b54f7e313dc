package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/gammadia/hqalloc/client/sossh"
	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/server/config"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Versioning information set at build time
var version, commit = "dev", "n/a"

var clientConn *grpc.ClientConn
var client proto.AutoAllocClient

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "hqalloc",
	Short: "hqalloc keeps HPC batch scheduler allocations flowing to your workers.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if err != nil {
				err = fmt.Errorf("failed to connect to gRPC client: %w", err)
			}
		}()

		remote := lo.Must(cmd.Flags().GetString("remote"))

		host, port, _ := strings.Cut(remote, ":")
		if port == "" {
			port = config.DefaultPort
		}
		sshTunneling := lo.Must(cmd.Flags().GetBool("ssh-tunneling"))
		if (host == "127.0.0.1" || host == "localhost") && !cmd.Flags().Changed("ssh-tunneling") {
			sshTunneling = false
		}

		if sshTunneling {
			dependencies := []string{"ssh"}
			if err := exec.Command("which", dependencies...).Run(); err != nil {
				return fmt.Errorf("missing mandatory dependencies (%s): %w", strings.Join(dependencies, ", "), err)
			}
		}

		var hostKey *sossh.HostKey
		if authorizedKey := lo.Must(cmd.Flags().GetString("ssh-host-key")); authorizedKey != "" {
			if hostKey, err = sossh.ParseHostKey(authorizedKey); err != nil {
				return err
			}
		}

		clientConn, err = grpc.NewClient(
			fmt.Sprintf("passthrough:///%s:%s", host, port),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxPacketSize),
				grpc.CallContentSubtype(proto.CodecName),
				grpc.UseCompressor(proto.CompressorName),
			),
			grpc.WithContextDialer(func(ctx context.Context, remote string) (net.Conn, error) {
				if !sshTunneling {
					return (&net.Dialer{}).DialContext(ctx, "tcp", remote)
				}

				sshPort := lo.Must(cmd.Flags().GetInt("ssh-port"))
				return sossh.DialContext(
					cmd.Context(),
					"tcp",
					fmt.Sprintf("%s:%d", host, sshPort),
					lo.Must(cmd.Flags().GetString("ssh-username")),
					fmt.Sprintf("127.0.0.1:%s", port),
					hostKey,
				)
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to create gRPC client: %w", err)
		}

		client = proto.NewAutoAllocClient(clientConn)
		return nil
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if clientConn != nil {
			return clientConn.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(allocCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(topCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(workloadCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("remote", lo.Must(lo.Coalesce(os.Getenv("HQALLOC_REMOTE"), "127.0.0.1:"+config.DefaultPort)), "the server remote address")
	rootCmd.PersistentFlags().Bool("ssh-tunneling", true, "use ssh tunneling to connect to the server")
	rootCmd.PersistentFlags().String("ssh-username", lo.Must(lo.Coalesce(os.Getenv("USER"), "hqalloc")), "username to use for ssh tunneling")
	rootCmd.PersistentFlags().Int("ssh-port", 22, "port to use for ssh tunneling")
	rootCmd.PersistentFlags().String("ssh-host-key", "", "host key to use for ssh tunneling verification (authorized_keys format)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetOut(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
