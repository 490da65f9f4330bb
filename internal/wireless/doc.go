// Package wireless drives the node's network stack and reports link
// lifecycle to the bring-up bridge.
//
// Station controls wpa_supplicant through wpa_cli and watches the
// interface over netlink, turning oper-state and address changes into
// associated / disassociated / address_assigned notifications. Static is
// the stand-in for wired or development hosts where the link is already up.
package wireless
