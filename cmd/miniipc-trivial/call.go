package main

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mini-ipc/channel"
	"mini-ipc/client"
	"mini-ipc/message"
	"mini-ipc/wire"
)

func newCallCmd() *cobra.Command {
	var name string
	var timeoutMs int

	cmd := &cobra.Command{
		Use:   "call {sum|gettimeofday|strcat} [args...]",
		Short: "Call one of the trivial procedures against a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			sink := newDiag()
			ch, err := channel.CreateClient(name, channel.WithDiag(sink))
			if err != nil {
				return fmt.Errorf("create client channel: %w", err)
			}
			defer ch.Close()

			proc := cmdArgs[0]
			rest := cmdArgs[1:]
			switch proc {
			case "sum":
				return callSum(ch, timeoutMs, rest)
			case "gettimeofday":
				return callGettimeofday(ch, timeoutMs)
			case "strcat":
				return callStrcat(ch, timeoutMs, rest)
			default:
				return fmt.Errorf("unknown procedure %q", proc)
			}
		},
	}
	cmd.Flags().StringVar(&name, "name", "trivial", "channel name (\"shm:<key>\" or \"mem:<hex>\" selects shared memory)")
	cmd.Flags().IntVar(&timeoutMs, "timeout-ms", 100, "reply timeout in milliseconds")
	return cmd
}

func callSum(ch *channel.Channel, timeoutMs int, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("sum needs exactly two integer arguments")
	}
	var a, b int64
	if _, err := fmt.Sscanf(args[0], "%d", &a); err != nil {
		return fmt.Errorf("parse first argument: %w", err)
	}
	if _, err := fmt.Sscanf(args[1], "%d", &b); err != nil {
		return fmt.Errorf("parse second argument: %w", err)
	}

	pd := message.Descriptor{
		Name:   "sum",
		Retval: wire.Encode(wire.KindInt, 4),
		Args:   []uint32{wire.Encode(wire.KindInt, 4), wire.Encode(wire.KindInt, 4)},
	}
	var ret int32
	if err := client.Call(ch, timeoutMs, pd, &ret, int32(a), int32(b)); err != nil {
		return err
	}
	fmt.Printf("%d + %d = %d\n", a, b, ret)
	return nil
}

func callGettimeofday(ch *channel.Channel, timeoutMs int) error {
	pd := message.Descriptor{
		Name:   "gettimeofday",
		Retval: wire.Encode(wire.KindStruct, 16),
	}
	var ret []byte
	if err := client.Call(ch, timeoutMs, pd, &ret); err != nil {
		return err
	}
	sec := int64(binary.LittleEndian.Uint64(ret[0:]))
	usec := int64(binary.LittleEndian.Uint64(ret[8:]))
	fmt.Printf("tv: %s\n", time.Unix(sec, usec*1000).Format(time.RFC3339Nano))
	return nil
}

func callStrcat(ch *channel.Channel, timeoutMs int, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("strcat needs exactly two string arguments")
	}
	pd := message.Descriptor{
		Name:   "strcat",
		Retval: wire.Encode(wire.KindString, 0),
		Args:   []uint32{wire.Encode(wire.KindString, 0), wire.Encode(wire.KindString, 0)},
	}
	var ret string
	if err := client.Call(ch, timeoutMs, pd, &ret, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("%q + %q = %q\n", args[0], args[1], ret)
	return nil
}
