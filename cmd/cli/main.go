// Command orderhub is a CLI client for the orderhub service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func usage() {
	fmt.Fprintf(os.Stderr, `orderhub CLI
Usage:
  orderhub -addr URL [-cacert file | -insecure] <cmd> [args]

Commands:
  version
  signup   -phone <phone> -p <password> [-name <full name>]
  login    -phone <phone> -p <password>        (saves tokens)
  refresh                                      (rotates saved tokens)
  logout                                       (releases the session)
  order    -name <name> -price <p> [-special <p>] [-ws]
  watch                                        (streams order events)
`)
	os.Exit(2)
}

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the HTTP API and the order socket.
func main() {
	addr := flag.String("addr", "http://localhost:8080", "server base URL")
	caPath := flag.String("cacert", "", "CA cert (PEM)")
	insecure := flag.Bool("insecure", false, "skip cert verify (dev)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	tlsCfg, err := loadTLS(*caPath, *insecure)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch cmd {

	case "version":
		fmt.Printf("orderhub %s (%s)\n", version, buildDate)

	case "signup":
		fs := flag.NewFlagSet("signup", flag.ExitOnError)
		phone := fs.String("phone", "", "phone")
		p := fs.String("p", "", "password")
		name := fs.String("name", "", "full name")
		_ = fs.Parse(args)
		if *phone == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -phone and -p")
			os.Exit(1)
		}
		acc, err := newClient(*addr, tlsCfg, "").signup(ctx, *phone, *p, *name)
		if err != nil {
			fail(err)
		}
		printJSON(acc)

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		phone := fs.String("phone", "", "phone")
		p := fs.String("p", "", "password")
		_ = fs.Parse(args)
		if *phone == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -phone and -p")
			os.Exit(1)
		}
		pair, err := newClient(*addr, tlsCfg, "").login(ctx, *phone, *p)
		if err != nil {
			fail(err)
		}
		tf := tokensFromPair(pair)
		if err := saveTokens(tf); err != nil {
			fail(err)
		}
		fmt.Printf("logged in, access token valid until %s\n", tf.ExpiresAt.Local().Format(time.RFC3339))

	case "refresh":
		tf, err := loadTokens()
		if err != nil || tf.RefreshToken == "" {
			fail(fmt.Errorf("no refresh token (login required)"))
		}
		pair, err := newClient(*addr, tlsCfg, "").refresh(ctx, tf.RefreshToken)
		if err != nil {
			fail(err)
		}
		tf = tokensFromPair(pair)
		if err := saveTokens(tf); err != nil {
			fail(err)
		}
		fmt.Printf("refreshed, access token valid until %s\n", tf.ExpiresAt.Local().Format(time.RFC3339))

	case "logout":
		tok, err := loadToken()
		if err != nil {
			fail(err)
		}
		if err := newClient(*addr, tlsCfg, tok).logout(ctx); err != nil {
			fail(err)
		}
		if err := clearTokens(); err != nil {
			fail(err)
		}
		fmt.Println("logged out")

	case "order":
		fs := flag.NewFlagSet("order", flag.ExitOnError)
		name := fs.String("name", "", "product name")
		price := fs.String("price", "", "price, e.g. 12.50")
		special := fs.String("special", "", "special price")
		viaWS := fs.Bool("ws", false, "submit over the websocket")
		_ = fs.Parse(args)
		if *name == "" || *price == "" {
			fmt.Fprintln(os.Stderr, "need -name and -price")
			os.Exit(1)
		}
		in := orderRequest{Name: *name, Price: *price}
		if *special != "" {
			in.SpecialPrice = special
		}

		tok, err := loadToken()
		if err != nil {
			fail(err)
		}
		c := newClient(*addr, tlsCfg, tok)
		if !*viaWS {
			out, err := c.createOrder(ctx, in)
			if err != nil {
				fail(err)
			}
			printJSON(out)
			return
		}
		ws, err := c.dialWS(ctx)
		if err != nil {
			fail(err)
		}
		defer ws.Close()
		msg, err := sendOrderWS(ctx, ws, in)
		if err != nil {
			fail(err)
		}
		fmt.Println(msg)

	case "watch":
		tok, err := loadToken()
		if err != nil {
			fail(err)
		}
		ws, err := newClient(*addr, tlsCfg, tok).dialWS(ctx)
		if err != nil {
			fail(err)
		}
		// streaming outlives the request timeout
		sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := watch(sigCtx, ws, os.Stdout); err != nil {
			fail(err)
		}

	default:
		usage()
	}
}
