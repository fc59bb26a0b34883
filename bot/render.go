// Copyright 2026 The Stackwarden Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stackwarden/stackwarden/openstack"
	"github.com/stackwarden/stackwarden/telegram"
	"github.com/stackwarden/stackwarden/topology"
	"github.com/stackwarden/stackwarden/workflow"
)

// view is one rendered screen: Markdown text plus the inline keyboard
// that drives the next step.
type view struct {
	text   string
	markup *telegram.InlineKeyboardMarkup
}

func button(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

func keyboard(rows ...[]telegram.InlineKeyboardButton) *telegram.InlineKeyboardMarkup {
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func backToMain() []telegram.InlineKeyboardButton {
	return []telegram.InlineKeyboardButton{button("🔙 Back to Main", "main")}
}

// statusEmoji maps a resource status to the glyph set used everywhere:
// green for active, red for error, yellow for anything in flight.
func statusEmoji(status string) string {
	switch status {
	case "ACTIVE":
		return "🟢"
	case "ERROR":
		return "🔴"
	default:
		return "🟡"
	}
}

func scopeEmoji(external bool) string {
	if external {
		return "🌍"
	}
	return "🏠"
}

func attachmentEmoji(attached bool) string {
	if attached {
		return "📎"
	}
	return "🔓"
}

// shortID trims a UUID for list display; detail views show it whole.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

func mainMenuView() view {
	return view{
		text: "🤖 *OpenStack Management Bot*\n\n" +
			"Welcome! I can help you monitor and manage your cloud tenant.\n\n" +
			"Choose an option from the menu below:",
		markup: keyboard(
			[]telegram.InlineKeyboardButton{button("📊 List Servers", "servers")},
			[]telegram.InlineKeyboardButton{button("🌐 List Networks", "networks")},
			[]telegram.InlineKeyboardButton{button("🔗 Floating IPs", "fips")},
			[]telegram.InlineKeyboardButton{button("ℹ️ Help", "help")},
		),
	}
}

func helpView() view {
	return view{
		text: "ℹ️ *Help*\n\n" +
			"• `/start` - Show main menu\n" +
			"• `/status` - Check bot and cloud connectivity\n" +
			"• `/newnet [name] [cidr]` - Create a private network\n" +
			"• `/cancel` - Abandon the current workflow\n\n" +
			"*Legend:*\n" +
			"• 🟢 Active/Available\n" +
			"• 🔴 Error/Down\n" +
			"• 🟡 Building/Transitioning\n" +
			"• 🌍 External network\n" +
			"• 🏠 Internal network\n" +
			"• 📎 Attached floating IP\n" +
			"• 🔓 Unattached floating IP",
		markup: keyboard(backToMain()),
	}
}

func serversView(servers []openstack.Server) view {
	if len(servers) == 0 {
		return view{text: "📭 No servers found in your project.", markup: keyboard(backToMain())}
	}
	var text strings.Builder
	text.WriteString("🖥️ *Your Servers:*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, server := range servers {
		fmt.Fprintf(&text, "%s *%s*\n   Status: `%s`\n   ID: `%s`\n\n",
			statusEmoji(server.Status), server.Name, server.Status, shortID(server.ID))
		rows = append(rows, []telegram.InlineKeyboardButton{
			button("📋 "+server.Name, fmt.Sprintf("srv:%d", i)),
		})
	}
	rows = append(rows, backToMain())
	return view{text: text.String(), markup: keyboard(rows...)}
}

func serverDetailView(index int, server *openstack.Server, interfaces []openstack.InterfaceAttachment) view {
	var text strings.Builder
	fmt.Fprintf(&text, "🖥️ *Server Details: %s*\n\n", server.Name)
	fmt.Fprintf(&text, "📊 *Status:* `%s`\n", server.Status)
	fmt.Fprintf(&text, "🆔 *ID:* `%s`\n", server.ID)
	fmt.Fprintf(&text, "🏷️ *Flavor:* `%s`\n", server.Flavor.ID)
	if server.Image.ID != "" {
		fmt.Fprintf(&text, "💿 *Image:* `%s`\n", server.Image.ID)
	}
	fmt.Fprintf(&text, "📅 *Created:* `%s`\n\n", server.Created)

	text.WriteString("🌐 *Networks:*\n")
	for networkName, addresses := range server.Addresses {
		fmt.Fprintf(&text, "   • *%s:*\n", networkName)
		for _, address := range addresses {
			fmt.Fprintf(&text, "     - %s (%s)\n", address.Addr, address.Type)
		}
	}
	if len(interfaces) > 0 {
		text.WriteString("\n🔌 *Interfaces:*\n")
		for _, attachment := range interfaces {
			fmt.Fprintf(&text, "   • `%s` on `%s` (%s)\n",
				shortID(attachment.PortID), shortID(attachment.NetID), attachment.PortState)
		}
	}

	return view{
		text: text.String(),
		markup: keyboard(
			[]telegram.InlineKeyboardButton{button("🔗 Associate Floating IP", fmt.Sprintf("fip.assoc:%d", index))},
			[]telegram.InlineKeyboardButton{
				button("➕ Add Fixed IP", fmt.Sprintf("ip.add:%d", index)),
				button("➖ Remove Fixed IP", fmt.Sprintf("ip.del:%d", index)),
			},
			[]telegram.InlineKeyboardButton{button("🔙 Back to Servers", "servers")},
		),
	}
}

func networksView(networks []openstack.Network) view {
	if len(networks) == 0 {
		return view{text: "📭 No networks found in your project.", markup: keyboard(backToMain())}
	}
	var text strings.Builder
	text.WriteString("🌐 *Your Networks:*\n\n")
	for _, network := range networks {
		fmt.Fprintf(&text, "%s %s *%s*\n   Status: `%s`\n   ID: `%s`\n\n",
			statusEmoji(network.Status), scopeEmoji(network.External),
			network.Name, network.Status, shortID(network.ID))
	}
	return view{text: text.String(), markup: keyboard(backToMain())}
}

func floatingIPsView(floatingIPs []openstack.FloatingIP) view {
	var text strings.Builder
	text.WriteString("🔗 *Floating IPs:*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, floatingIP := range floatingIPs {
		fmt.Fprintf(&text, "%s %s `%s`\n",
			statusEmoji(floatingIP.Status), attachmentEmoji(floatingIP.Attached()),
			floatingIP.FloatingIPAddress)
		if floatingIP.Attached() {
			fmt.Fprintf(&text, "   Fixed IP: `%s`\n\n", floatingIP.FixedIPAddress)
			rows = append(rows, []telegram.InlineKeyboardButton{
				button("✂️ Detach "+floatingIP.FloatingIPAddress, fmt.Sprintf("fip.detach:%d", i)),
			})
		} else {
			text.WriteString("\n")
			rows = append(rows, []telegram.InlineKeyboardButton{
				button("🗑️ Release "+floatingIP.FloatingIPAddress, fmt.Sprintf("fip.del:%d", i)),
			})
		}
	}
	if len(floatingIPs) == 0 {
		text.WriteString("📭 No floating IPs allocated.\n")
	}
	rows = append(rows,
		[]telegram.InlineKeyboardButton{button("➕ Allocate New", "fip.alloc")},
		backToMain(),
	)
	return view{text: text.String(), markup: keyboard(rows...)}
}

func associateCandidatesView(candidates []openstack.FloatingIP) view {
	var text strings.Builder
	text.WriteString("🔗 *Pick a floating IP to associate:*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, candidate := range candidates {
		fmt.Fprintf(&text, "🔓 `%s`\n", candidate.FloatingIPAddress)
		rows = append(rows, []telegram.InlineKeyboardButton{
			button(candidate.FloatingIPAddress, fmt.Sprintf("fip.pick:%d", i)),
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{button("❌ Cancel", "cancel")})
	return view{text: text.String(), markup: keyboard(rows...)}
}

func associateResultView(result *workflow.AssociateResult) view {
	var text strings.Builder
	fmt.Fprintf(&text, "✅ *Floating IP associated*\n\n`%s` → port `%s`",
		result.FloatingIP.FloatingIPAddress, shortID(result.PortID))
	if result.FloatingIP.FixedIPAddress != "" {
		fmt.Fprintf(&text, " (fixed IP `%s`)", result.FloatingIP.FixedIPAddress)
	}
	if result.AttachedNetworkID != "" {
		fmt.Fprintf(&text, "\n\nA new interface was attached on network `%s` first.",
			shortID(result.AttachedNetworkID))
	}
	return view{text: text.String(), markup: keyboard(backToMain())}
}

func interfaceChoicesView(interfaces []openstack.InterfaceAttachment) view {
	var text strings.Builder
	text.WriteString("🔌 *Pick the interface for the new fixed IP:*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, attachment := range interfaces {
		fmt.Fprintf(&text, "• `%s` on `%s`\n", shortID(attachment.PortID), shortID(attachment.NetID))
		rows = append(rows, []telegram.InlineKeyboardButton{
			button(shortID(attachment.PortID), fmt.Sprintf("ip.iface:%d", i)),
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{button("❌ Cancel", "cancel")})
	return view{text: text.String(), markup: keyboard(rows...)}
}

func subnetChoicesView(choices []topology.SubnetChoice) view {
	var text strings.Builder
	text.WriteString("🌐 *Pick the subnet for the new fixed IP:*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, choice := range choices {
		fmt.Fprintf(&text, "• *%s* `%s`\n", choice.Network.Name, choice.Subnet.CIDR)
		rows = append(rows, []telegram.InlineKeyboardButton{
			button(fmt.Sprintf("%s %s", choice.Network.Name, choice.Subnet.CIDR), fmt.Sprintf("ip.subnet:%d", i)),
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{button("❌ Cancel", "cancel")})
	return view{text: text.String(), markup: keyboard(rows...)}
}

func confirmAddView(choice *topology.SubnetChoice) view {
	return view{
		text: fmt.Sprintf("➕ Add a fixed IP from *%s* (`%s`)?", choice.Network.Name, choice.Subnet.CIDR),
		markup: keyboard([]telegram.InlineKeyboardButton{
			button("✅ Confirm", "ip.add.yes"),
			button("❌ Cancel", "cancel"),
		}),
	}
}

func removalChoicesView(removals []workflow.RemovalCandidate) view {
	var text strings.Builder
	text.WriteString("➖ *Pick the fixed IP to remove:*\n\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, removal := range removals {
		fmt.Fprintf(&text, "• `%s` on port `%s`\n", removal.IPAddress, shortID(removal.PortID))
		rows = append(rows, []telegram.InlineKeyboardButton{
			button(removal.IPAddress, fmt.Sprintf("ip.pick:%d", i)),
		})
	}
	rows = append(rows, []telegram.InlineKeyboardButton{button("❌ Cancel", "cancel")})
	return view{text: text.String(), markup: keyboard(rows...)}
}

func confirmRemoveView(removal *workflow.RemovalCandidate) view {
	return view{
		text: fmt.Sprintf("➖ Remove fixed IP `%s` from port `%s`?", removal.IPAddress, shortID(removal.PortID)),
		markup: keyboard([]telegram.InlineKeyboardButton{
			button("✅ Confirm", "ip.del.yes"),
			button("❌ Cancel", "cancel"),
		}),
	}
}

func confirmReleaseView(index int, floatingIP openstack.FloatingIP) view {
	return view{
		text: fmt.Sprintf("🗑️ Release floating IP `%s`? This cannot be undone.", floatingIP.FloatingIPAddress),
		markup: keyboard([]telegram.InlineKeyboardButton{
			button("✅ Release", fmt.Sprintf("fip.del.yes:%d", index)),
			button("❌ Cancel", "fips"),
		}),
	}
}

// errorView renders a failure for the user: friendly for the error
// kinds users can act on, generic for everything else. Details stay in
// the logs.
func errorView(err error) view {
	text := "❌ Something went wrong. Please check the logs."
	var unauthorized *UnauthorizedError
	var notFound *openstack.NotFoundError
	var authErr *openstack.AuthError
	switch {
	case errors.As(err, &unauthorized):
		text = "⛔ You are not authorized to use this bot."
	case errors.Is(err, workflow.ErrNoPendingSelection):
		text = "🤷 Nothing is pending. Start over from the menu."
	case errors.As(err, &notFound):
		text = fmt.Sprintf("📭 No %s found.", notFound.Resource)
	case errors.As(err, &authErr):
		text = "🔑 Cloud authentication failed. Check the credentials."
	case openstack.IsTransport(err):
		text = "📡 The cloud API is unreachable right now. Try again shortly."
	}
	return view{text: text, markup: keyboard(backToMain())}
}
