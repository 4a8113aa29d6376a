////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parameters and starts the
// messenger client.
package cmd

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/xx_network/primitives/netTime"

	"gitlab.com/elixxir/messenger/chat"
	"gitlab.com/elixxir/messenger/chat/storage"
	"gitlab.com/elixxir/messenger/transport"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen once
// to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Runs the messenger chat client",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint("logLevel"), viper.GetString("log"))

		client, socket := buildClient()
		defer socket.Close()

		if err := client.Start(); err != nil {
			jww.WARN.Printf("Initial fetch failed, continuing on "+
				"push events only: %+v", err)
		}
		defer client.Stop()

		runShell(client)
	},
}

// buildClient wires the transports, session storage, and directory into the
// engine.
func buildClient() (*chat.Client, *transport.Socket) {
	rest := transport.NewRESTClient(transport.RESTParams{
		BaseURL:     viper.GetString("server"),
		VerifyToken: viper.GetString("verifyToken"),
		Challenge:   viper.GetString("challenge"),
	})

	socket, err := transport.DialSocket(viper.GetString("socket"))
	if err != nil {
		jww.FATAL.Panicf("Failed to connect push socket: %+v", err)
	}

	var events chat.EventModel
	if viper.GetBool("persist") {
		events, err = storage.NewEventModel(viper.GetString("session"), nil)
		if err != nil {
			jww.FATAL.Panicf("Failed to open session database: %+v", err)
		}
	}

	client, err := chat.NewClient(chat.Params{
		Self:     viper.GetString("self"),
		Resolver: directory(viper.GetStringMapString("contacts")),
		Events:   events,
	}, rest, socket)
	if err != nil {
		jww.FATAL.Panicf("Failed to build chat client: %+v", err)
	}
	return client, socket
}

// directory is a static IdentityResolver sourced from config.
type directory map[string]string

func (d directory) DisplayName(peerID string) (string, bool) {
	name, ok := d[peerID]
	return name, ok
}

// runShell drives the client from stdin: list contacts, open a conversation,
// send lines, quit.
func runShell(client *chat.Client) {
	fmt.Println("commands: /contacts, /open <peer>, /quit; " +
		"anything else sends to the open conversation")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/contacts":
			printContacts(client)
		case strings.HasPrefix(line, "/open "):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			client.SetActiveConversation(peer)
			client.MarkViewed(peer, netTime.Now())
			printConversation(client, peer)
		case line == "":
		default:
			peer := client.ActiveConversation()
			if peer == "" {
				fmt.Println("no open conversation; use /open <peer>")
				continue
			}
			client.Keystroke(peer)
			if _, err := client.Send(peer, line); err != nil {
				fmt.Printf("send failed: %s\n", err)
			}
		}
	}
}

func printContacts(client *chat.Client) {
	for _, c := range client.Contacts() {
		when := chat.FormatMessageTime(c.LastMessageTime, netTime.Now(), nil)
		fmt.Printf("%s (%s)  %s  [%d unread]  %s\n",
			c.Name, c.ID, when, c.Unread, c.LastMessage)
	}
}

func printConversation(client *chat.Client, peerID string) {
	for _, bucket := range client.ConversationView(peerID) {
		fmt.Printf("--- %s ---\n", bucket.Label)
		for _, m := range bucket.Messages {
			who := client.DisplayName(peerID)
			if m.Direction == chat.Sent {
				who = "You"
			}
			fmt.Printf("%s: %s\n", who, m.Body)
		}
	}
}

// init is the initialization function for Cobra which defines flags.
func init() {
	if err := godotenv.Load(); err != nil {
		jww.DEBUG.Printf("No .env file loaded: %+v", err)
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("server", "s", "http://localhost:3000",
		"Base URL of the message API")
	flags.String("socket", "ws://localhost:3000/socket",
		"URL of the push socket")
	flags.String("self", "me",
		"Identity of the local user")
	flags.String("verifyToken", "",
		"Verification token sent with message fetches")
	flags.String("challenge", "",
		"Challenge value sent with message fetches")
	flags.Bool("persist", false,
		"Mirror the session into a sqlite database")
	flags.String("session", "",
		"Path of the session database; empty means in-memory")
	flags.StringToString("contacts", nil,
		"Directory of peer id to display name")
	flags.StringP("log", "l", "-",
		"Path of the log output; - for stdout")
	flags.UintP("logLevel", "v", 0,
		"Verbosity of log printing: 0 = info, 1 = debug, 2+ = trace")

	if err := viper.BindPFlags(flags); err != nil {
		jww.FATAL.Panicf("Failed to bind flags: %+v", err)
	}
	viper.SetEnvPrefix("messenger")
	viper.AutomaticEnv()
}

// initLog initializes logging thresholds and the log path.
func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(ioutil.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}
