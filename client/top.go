package main

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gammadia/hqalloc/proto"
	"github.com/gammadia/hqalloc/timelimit"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var topCmd = &cobra.Command{
	Use:   "top",
	Short: "Show the live status of the server and its queues",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		interval := lo.Must(cmd.Flags().GetDuration("interval"))

		// Fail early when the server is unreachable
		if _, err := client.Ping(cmd.Context(), &proto.PingRequest{}); err != nil {
			return fmt.Errorf("failed to ping server: %w", err)
		}

		app := tview.NewApplication()

		header := tview.NewTextView().
			SetDynamicColors(true).
			SetWordWrap(true).
			SetTextAlign(tview.AlignLeft)
		header.SetBorder(true).SetTitle(" hqalloc ")

		queuesTable := tview.NewTable().
			SetFixed(1, 0).
			SetSelectable(true, false)
		queuesTable.SetBorder(true).SetTitle(" Queues ")

		allocationsTable := tview.NewTable().
			SetFixed(1, 0).
			SetSelectable(true, false)
		allocationsTable.SetBorder(true).SetTitle(" Allocations ")

		eventsView := tview.NewTextView().
			SetDynamicColors(true).
			SetScrollable(true)
		eventsView.SetBorder(true).SetTitle(" Events ")

		layout := tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(header, 4, 0, false).
			AddItem(queuesTable, 0, 1, false).
			AddItem(allocationsTable, 0, 2, false).
			AddItem(eventsView, 0, 1, false)

		// Tab cycles the focus between the panes
		focusables := []tview.Primitive{queuesTable, allocationsTable, eventsView}
		focusIndex := 0
		app.SetFocus(queuesTable)

		app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			if event.Rune() == 'q' {
				app.Stop()
				return nil
			}
			if event.Key() == tcell.KeyTab || event.Key() == tcell.KeyBacktab {
				if event.Key() == tcell.KeyBacktab {
					focusIndex = (focusIndex + len(focusables) - 1) % len(focusables)
				} else {
					focusIndex = (focusIndex + 1) % len(focusables)
				}
				app.SetFocus(focusables[focusIndex])
				return nil
			}
			return event
		})

		// State for rendering, only accessed from tview's event loop (via QueueUpdateDraw)
		var last *topSnapshot

		updateHeader := func() {
			header.Clear()
			if last == nil || last.ping.Status == nil {
				return
			}
			status := last.ping.Status

			uptime := ""
			if status.StartedAt != nil {
				uptime = formatDuration(time.Since(status.StartedAt.AsTime()))
			}
			pending := lo.TernaryF(status.PendingTasks != nil,
				func() string { return fmt.Sprint(*status.PendingTasks) },
				func() string { return "assumed" },
			)

			fmt.Fprintf(header, " [yellow]hqalloc[white] %s (%s)  |  Manager: [yellow]%s[white]  |  Uptime: [green]%s[white]  |  Pending tasks: [yellow]%s[white]\n",
				last.ping.Version, shortCommit(last.ping.Commit), status.Name, uptime, pending)
			fmt.Fprintf(header, " Allocations: %s  |  Submission failures: [red]%d[white]",
				allocationCounters(status), status.SubmissionFailures)
		}

		updateQueues := func() {
			queuesTable.Clear()
			queues := lo.TernaryF(last != nil, func() []*proto.Queue { return last.queues }, func() []*proto.Queue { return nil })
			queuesTable.SetTitle(fmt.Sprintf(" Queues (%d) ", len(queues)))

			for col, title := range []string{"ID", "BACKEND", "NAME", "BACKLOG", "WORKERS", "TIME LIMIT", "ACTIVE"} {
				queuesTable.SetCell(0, col, tview.NewTableCell(title).
					SetTextColor(tcell.ColorYellow).
					SetSelectable(false).
					SetExpansion(1))
			}

			for row, queue := range queues {
				descriptor := lo.FromPtr(queue.Descriptor)
				cells := []string{
					fmt.Sprint(queue.ID),
					descriptor.Backend,
					descriptor.Name,
					fmt.Sprint(descriptor.Backlog),
					fmt.Sprint(descriptor.WorkersPerAlloc),
					timelimit.Format(descriptor.TimeLimit.AsDuration()),
					fmt.Sprint(queue.ActiveAllocations),
				}
				for col, cell := range cells {
					queuesTable.SetCell(row+1, col, tview.NewTableCell(cell).
						SetTextColor(lo.Ternary(queue.ID == last.queue, tcell.ColorAqua, tcell.ColorWhite)).
						SetReference(queue.ID).
						SetExpansion(1))
				}
			}
		}

		updateAllocations := func() {
			allocationsTable.Clear()
			if last == nil || last.queue == 0 {
				allocationsTable.SetTitle(" Allocations ")
				return
			}
			allocations := last.allocations
			allocationsTable.SetTitle(fmt.Sprintf(" Allocations of queue %d: %s ", last.queue, allocationProgress(allocations)))

			for col, title := range []string{"ID", "STATE", "WORKERS", "QUEUED", "STARTED", "FINISHED", "EXIT CODE"} {
				allocationsTable.SetCell(0, col, tview.NewTableCell(title).
					SetTextColor(tcell.ColorYellow).
					SetSelectable(false).
					SetExpansion(1))
			}

			// Newest first
			for row, allocation := range lo.Reverse(append([]*proto.Allocation{}, allocations...)) {
				exitCode := ""
				if allocation.ExitCode != nil {
					exitCode = fmt.Sprint(*allocation.ExitCode)
				}
				cells := []string{
					allocation.JobID,
					allocation.State,
					fmt.Sprint(allocation.Workers),
					allocation.QueuedAt,
					allocation.StartedAt,
					allocation.FinishedAt,
					exitCode,
				}
				for col, cell := range cells {
					allocationsTable.SetCell(row+1, col, tview.NewTableCell(cell).
						SetTextColor(lo.Ternary(col == 1, allocationStateColor(allocation.State), tcell.ColorWhite)).
						SetExpansion(1))
				}
			}
		}

		updateEvents := func() {
			eventsView.Clear()
			if last == nil {
				return
			}
			for _, event := range last.events {
				message := strings.ReplaceAll(strings.TrimRight(event.Message, "\n"), "\n", " | ")
				fmt.Fprintf(eventsView, "[gray]%s[white] %s: %s\n", formatTimestamp(event.Time), event.Kind, tview.Escape(message))
			}
			eventsView.ScrollToEnd()
		}

		updateAll := func() {
			updateHeader()
			updateQueues()
			updateAllocations()
			updateEvents()
		}

		// Shared with the polling goroutine, which wakes up on every new selection
		var selected atomic.Uint64
		wakeUp := make(chan struct{}, 1)
		queuesTable.SetSelectionChangedFunc(func(row, _ int) {
			if id, ok := queuesTable.GetCell(row, 0).GetReference().(uint64); ok && id != selected.Load() {
				selected.Store(id)
				select {
				case wakeUp <- struct{}{}:
				default:
				}
			}
		})

		// done is closed when the app stops, to signal goroutines to exit.
		done := make(chan struct{})

		// The server has no push API: poll it, off the tview event loop
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				snapshot, err := fetchTopSnapshot(cmd.Context(), client, selected.Load())
				if err != nil {
					app.Stop()
					return
				}
				app.QueueUpdateDraw(func() {
					last = snapshot
					updateAll()
				})

				select {
				case <-done:
					return
				case <-wakeUp:
				case <-ticker.C:
				}
			}
		}()

		err := app.SetRoot(layout, true).Run()
		close(done)
		return err
	},
}

func init() {
	topCmd.Flags().Duration("interval", time.Second, "refresh interval")
}

// topSnapshot is everything the top view displays, fetched in one go.
type topSnapshot struct {
	ping *proto.PingResponse
	// Queue whose allocations and events were fetched, 0 when there is none
	queue       uint64
	queues      []*proto.Queue
	allocations []*proto.Allocation
	events      []*proto.Event
}

// fetchTopSnapshot fetches the server status and queues, and the allocations and events of
// the given queue when it still exists.
func fetchTopSnapshot(ctx context.Context, client proto.AutoAllocClient, queue uint64) (*topSnapshot, error) {
	ping, err := client.Ping(ctx, &proto.PingRequest{})
	if err != nil {
		return nil, err
	}
	queues, err := client.ListQueues(ctx, &proto.ListQueuesRequest{})
	if err != nil {
		return nil, err
	}

	snapshot := &topSnapshot{ping: ping, queues: queues.Queues}
	// Fall back on the first queue until one is selected
	if queue == 0 && len(queues.Queues) > 0 {
		queue = queues.Queues[0].ID
	}
	if !lo.SomeBy(queues.Queues, func(q *proto.Queue) bool { return q.ID == queue }) {
		return snapshot, nil
	}
	snapshot.queue = queue

	// The queue may be removed in between, leaving the panes empty until the next refresh
	if allocations, err := client.GetAllocations(ctx, &proto.GetAllocationsRequest{QueueID: queue}); err == nil {
		snapshot.allocations = allocations.Allocations
	}
	if events, err := client.GetEvents(ctx, &proto.GetEventsRequest{QueueID: queue}); err == nil {
		snapshot.events = events.Events
	}
	return snapshot, nil
}

func allocationStateColor(state string) tcell.Color {
	switch state {
	case "Queued":
		return tcell.ColorYellow
	case "Running":
		return tcell.ColorGreen
	case "Finished":
		return tcell.ColorGray
	case "Failed":
		return tcell.ColorRed
	default:
		return tcell.ColorWhite
	}
}

func formatDuration(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %02dm %02ds", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60)
}

func allocationProgress(allocations []*proto.Allocation) string {
	counts := map[string]int{}
	for _, allocation := range allocations {
		counts[allocation.State]++
	}

	parts := []string{}
	if n := counts["Running"]; n > 0 {
		parts = append(parts, fmt.Sprintf("[green]%d running[-]", n))
	}
	if n := counts["Queued"]; n > 0 {
		parts = append(parts, fmt.Sprintf("[yellow]%d queued[-]", n))
	}
	if n := counts["Failed"]; n > 0 {
		parts = append(parts, fmt.Sprintf("[red]%d failed[-]", n))
	}
	if n := counts["Finished"]; n > 0 {
		parts = append(parts, fmt.Sprintf("[gray]%d finished[-]", n))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func allocationCounters(status *proto.ServerStatus) string {
	return fmt.Sprintf("[yellow]%d queued[-], [green]%d started[-], [gray]%d finished[-], [red]%d failed[-]",
		status.AllocationsQueued, status.AllocationsStarted, status.AllocationsFinished, status.AllocationsFailed)
}
