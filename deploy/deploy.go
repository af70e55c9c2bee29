/*
Package deploy starts worker processes on remote machines over SSH, one
rank per host. It assumes the worker binary is already installed on each
host; every launched rank receives its index appended to the shared
command line.
*/
package deploy

import (
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/calculquebec/cq-formation-ecoulement-chaleur/configs"
)

// Result reports one host's launch outcome.
type Result struct {
	Rank int
	Addr string
	Err  error
}

// Launch dials every host in parallel and starts command on it with
// "-rank <firstRank+i>" appended, waiting up to timeout for the whole
// group. Password auth with no host key verification: the operational
// model is a closed lab network, the same as the reference deployment.
func Launch(hosts []configs.Host, firstRank int, command string, timeout time.Duration) []Result {
	resc := make(chan Result, len(hosts))
	for i, h := range hosts {
		go func(rank int, h configs.Host) {
			resc <- Result{Rank: rank, Addr: h.Address, Err: launchOne(rank, h, command)}
		}(firstRank+i, h)
	}

	results := make([]Result, 0, len(hosts))
	deadline := time.After(timeout)
	for range hosts {
		select {
		case r := <-resc:
			if r.Err != nil {
				log.Printf("[deploy] rank %d on %s: %v", r.Rank, r.Addr, r.Err)
			} else {
				log.Printf("[deploy] rank %d running on %s", r.Rank, r.Addr)
			}
			results = append(results, r)
		case <-deadline:
			log.Printf("[deploy] timed out waiting for %d hosts", len(hosts)-len(results))
			return results
		}
	}
	return results
}

func launchOne(rank int, h configs.Host, command string) error {
	cfg := &ssh.ClientConfig{
		User:            h.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(h.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	addr := h.Address
	if !strings.Contains(addr, ":") {
		addr += ":22"
	}

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return fmt.Errorf("deploy: dialing %s: %w", addr, err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("deploy: session on %s: %w", addr, err)
	}
	defer session.Close()

	// nohup + background so the session can close while the worker runs.
	remote := fmt.Sprintf("nohup %s -rank %d >/tmp/ecoulement-rank%d.log 2>&1 &",
		command, rank, rank)
	if err := session.Run(remote); err != nil {
		return fmt.Errorf("deploy: starting rank %d on %s: %w", rank, addr, err)
	}
	return nil
}
