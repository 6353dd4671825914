package kube

import (
	"bufio"
	"context"
	"fmt"
	"io"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
)

// TailLogs returns the last lines of a container's log, reading the stream until EOF.
// When previous is set the log of the last terminated instance is read, which is what
// explains a crash loop.
func TailLogs(ctx context.Context, cs kubernetes.Interface, namespace, pod, container string, lines int64, previous bool) ([]string, error) {
	opts := &corev1.PodLogOptions{
		Container: container,
		TailLines: &lines,
		Previous:  previous,
	}
	stream, err := cs.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open log stream for %s/%s: %w", namespace, pod, err)
	}
	defer stream.Close()

	return readLines(stream, int(lines))
}

func readLines(r io.Reader, max int) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out = append(out, scanner.Text())
		if max > 0 && len(out) > max {
			out = out[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("failed to read log stream: %w", err)
	}
	return out, nil
}
