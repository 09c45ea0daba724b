package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/chazu/moonc/server"
)

// remoteTimeout bounds a single remote compilation.
const remoteTimeout = 30 * time.Second

// runRemote compiles each path, or stdin when there are none, on the
// compile server at addr and prints the listings.
func runRemote(ctx context.Context, addr string, paths []string, stdin io.Reader, stdout io.Writer) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	if len(paths) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return fmt.Errorf("cannot read stdin: %w", err)
		}
		listing, err := remoteCompile(ctx, conn, stdinChunkName, string(data))
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, listing)
		return nil
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		listing, err := remoteCompile(ctx, conn, path, string(data))
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, listing)
	}
	return nil
}

// remoteCompile calls the Compile procedure over gRPC and returns the
// listing. Server-side compile errors come back with the status message
// the compiler produced.
func remoteCompile(ctx context.Context, conn *grpc.ClientConn, name, source string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, strings.ToLower(server.ChunkNameHeader), name)

	resp := new(structpb.Struct)
	if err := conn.Invoke(ctx, server.CompileProcedure, wrapperspb.String(source), resp); err != nil {
		if st, ok := status.FromError(err); ok {
			return "", errors.New(st.Message())
		}
		return "", err
	}
	return resp.GetFields()["listing"].GetStringValue(), nil
}
