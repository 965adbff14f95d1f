// Terminal client for the flaparena session server: browse rooms, host or
// join a lobby, run the ready handshake and watch live state scroll by.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"flaparena/internal/client"
	"flaparena/internal/protocol"
)

var (
	addr = flag.String("addr", "localhost:5555", "Server address")
	name = flag.String("name", "Player", "Display name")
	skin = flag.Int("skin", 0, "Skin id")
)

var (
	infoColor   = color.New(color.FgCyan)
	serverColor = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed, color.Bold)
)

func main() {
	flag.Parse()

	c, err := client.Dial(*addr)
	if err != nil {
		errColor.Printf("connect failed: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	serverColor.Printf("connected to %s\n", *addr)

	go printNotices(c)

	printHelp()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if c.Closed() {
			errColor.Println("connection lost")
			return
		}
		if !runCommand(c, strings.Fields(scanner.Text())) {
			return
		}
	}
}

func runCommand(c *client.Client, args []string) bool {
	if len(args) == 0 {
		return true
	}
	var err error
	switch args[0] {
	case "rooms":
		err = c.RequestRooms()
	case "list":
		printRooms(c.Rooms())
	case "create":
		code := client.RandomCode()
		password := ""
		if len(args) > 1 {
			code = args[1]
		}
		if len(args) > 2 {
			password = args[2]
		}
		infoColor.Printf("creating room %s\n", code)
		if err = c.CreateRoom(code, password); err == nil {
			err = c.UpdateSeat(*name, *skin, false)
		}
	case "join":
		if len(args) < 2 {
			warnColor.Println("usage: join <code> [password]")
			return true
		}
		password := ""
		if len(args) > 2 {
			password = args[2]
		}
		if err = c.JoinRoom(args[1], password); err == nil {
			err = c.UpdateSeat(*name, *skin, false)
		}
	case "leave":
		err = c.LeaveRoom()
	case "remove":
		err = c.RemoveRoom()
	case "kick":
		if len(args) < 2 {
			warnColor.Println("usage: kick <seat>")
			return true
		}
		var seat int
		if seat, err = strconv.Atoi(args[1]); err == nil {
			err = c.Kick(seat)
		}
	case "ready":
		err = c.UpdateSeat(*name, *skin, true)
	case "start":
		err = c.Start()
	case "confirm":
		err = c.Ready()
	case "restart":
		err = c.Restart()
	case "freeze":
		err = c.UseFreeze()
	case "teleport":
		err = c.UseTeleport()
	case "lobby":
		printLobby(c.LobbySnapshot())
	case "game":
		printGame(c.GameSnapshot())
	case "help":
		printHelp()
	case "quit", "exit":
		return false
	default:
		warnColor.Printf("unknown command %q (try help)\n", args[0])
	}
	if err != nil {
		errColor.Printf("error: %v\n", err)
	}
	return true
}

func printNotices(c *client.Client) {
	for n := range c.Notices() {
		switch n.Keyword {
		case protocol.MsgJoined:
			serverColor.Printf("\njoined room %s as seat %s (%s)\n> ",
				n.Fields[1], n.Fields[2], n.Fields[3])
		case protocol.MsgKicked:
			warnColor.Print("\nyou were kicked from the room\n> ")
		case protocol.MsgRoomClosed:
			warnColor.Printf("\nroom %s was closed\n> ", n.Fields[1])
		case protocol.MsgUpdateID:
			infoColor.Printf("\nyour seat is now %s\n> ", n.Fields[1])
		case protocol.MsgReadyNext:
			infoColor.Printf("\nwaiting on seat %s (confirm with 'confirm')\n> ", n.Fields[1])
		case protocol.MsgAllReady:
			serverColor.Print("\nall seats ready, match on!\n> ")
		case protocol.MsgRestart:
			infoColor.Print("\nback to the lobby\n> ")
		case protocol.MsgGetFrozen:
			warnColor.Printf("\nfrozen by seat %s!\n> ", n.Fields[1])
		case protocol.MsgTeleportTo:
			warnColor.Printf("\nteleported to %s,%s\n> ", n.Fields[1], n.Fields[2])
		}
	}
}

func printRooms(rooms []protocol.RoomInfo) {
	if len(rooms) == 0 {
		infoColor.Println("no open rooms (refresh with 'rooms')")
		return
	}
	for _, r := range rooms {
		lock := ""
		if r.HasPassword {
			lock = " [locked]"
		}
		fmt.Printf("  %s  %d/4%s\n", r.Code, r.OccupiedSeats, lock)
	}
}

func printLobby(u *protocol.LobbyUpdate) {
	if u == nil {
		infoColor.Println("no lobby snapshot yet")
		return
	}
	for _, p := range u.Players {
		tag := " "
		if p.Host {
			tag = "H"
		}
		ready := " "
		if p.Ready {
			ready = "ready"
		}
		fmt.Printf("  [%s] seat %d  %-16s skin %d  %s\n", tag, p.Seat, p.Name, p.Skin, ready)
	}
}

func printGame(u *protocol.GameUpdate) {
	if u == nil {
		infoColor.Println("no game snapshot yet")
		return
	}
	for _, p := range u.Players {
		flags := ""
		if p.Respawning {
			flags += " respawning"
		}
		if p.Penetrating {
			flags += " penetrating"
		}
		if p.Frozen {
			flags += " frozen"
		}
		fmt.Printf("  seat %d  x=%.1f y=%.1f rot=%.1f%s\n", p.Seat, p.X, p.Y, p.Rot, flags)
	}
}

func printHelp() {
	infoColor.Println(`commands:
  rooms            request the open room list
  list             print the last received room list
  create [code] [password]
  join <code> [password]
  leave | remove | kick <seat>
  ready            toggle your seat ready
  start            host: begin the ready handshake
  confirm          confirm when it is your seat's turn
  restart          host: back to lobby
  freeze | teleport
  lobby | game     print the latest snapshot
  quit`)
}
