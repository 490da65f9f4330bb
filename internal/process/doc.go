// Package process supervises a long-running helper daemon the node depends
// on, such as wpa_supplicant when the node owns its wireless interface.
//
// A Supervisor starts the binary in its own process group, forwards its
// output to the logger line by line, optionally waits for a readiness probe,
// and restarts it after unexpected exits until the restart budget is spent.
//
//	sup := process.New(process.Config{
//	    Name:   "wpa_supplicant",
//	    Binary: "/usr/sbin/wpa_supplicant",
//	    Args:   []string{"-i", "wlan0", "-c", "/etc/wpa_supplicant/wpa_supplicant.conf"},
//	    Ready:  station.Ping,
//	})
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package process
