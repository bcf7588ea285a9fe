// Package main provides the player CLI entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/saavnbox/internal/api/connect"
)

var (
	app    = kingpin.New("saavnbox", "saavnbox player client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").Envar("SAAVNBOX_SERVER").String()
	token  = app.Flag("token", "Control token (or set SAAVNBOX_TOKEN env)").Envar("SAAVNBOX_TOKEN").String()

	// play command
	playCmd  = app.Command("play", "Play one song by catalog ID")
	playSong = playCmd.Arg("song-id", "Catalog song ID").Required().String()

	// add command
	addCmd  = app.Command("add", "Append a song to the queue")
	addSong = addCmd.Arg("song-id", "Catalog song ID").Required().String()

	// load command
	loadCmd  = app.Command("load", "Load an album, artist or playlist into the queue")
	loadKind = loadCmd.Arg("kind", "Entity kind").Required().Enum("album", "artist", "playlist")
	loadID   = loadCmd.Arg("id", "Entity ID").Required().String()
	loadPlay = loadCmd.Flag("play", "Start playing the first track").Bool()

	// transport commands
	nextCmd   = app.Command("next", "Play the next track")
	prevCmd   = app.Command("prev", "Play the previous track")
	toggleCmd = app.Command("toggle", "Toggle play and pause")
	pauseCmd  = app.Command("pause", "Pause playback")
	modeCmd   = app.Command("mode", "Set the play mode, or cycle it when omitted")
	modeName  = modeCmd.Arg("mode", "sequential, shuffle or repeat_one").String()
	seekCmd   = app.Command("seek", "Seek within the current track")
	seekPos   = seekCmd.Arg("position", "Position such as 1m30s").Required().Duration()

	// queue commands
	queueCmd    = app.Command("queue", "Show the state and the queue").Alias("state")
	removeCmd   = app.Command("remove", "Remove a queue entry")
	removeIndex = removeCmd.Arg("index", "Zero-based queue index").Required().Int()
	clearCmd    = app.Command("clear", "Stop playback and empty the queue")

	// search command
	searchCmd   = app.Command("search", "Search the catalog")
	searchKind  = searchCmd.Flag("kind", "song, album, artist or playlist").Short('k').Default("song").String()
	searchPage  = searchCmd.Flag("page", "Result page").Default("1").Int()
	searchQuery = searchCmd.Arg("query", "Search text").Required().String()

	// favorites commands
	favCmd       = app.Command("fav", "Toggle a song as favorite")
	favSong      = favCmd.Arg("song-id", "Catalog song ID (default: current track)").String()
	isFavCmd     = app.Command("is-fav", "Show whether an item is a favorite")
	isFavID      = isFavCmd.Arg("id", "Catalog ID (default: current track)").String()
	favsCmd      = app.Command("favs", "List favorites")
	favsKind     = favsCmd.Flag("kind", "Filter by kind").Short('k').String()
	playFavsCmd  = app.Command("play-favs", "Play all favorite songs")
	downloadCmd  = app.Command("download", "Download a song to the music directory")
	downloadSong = downloadCmd.Arg("song-id", "Catalog song ID (default: current track)").String()
	downloadWait = downloadCmd.Flag("wait", "Wait until the download finishes").Bool()
	dlStatusCmd  = app.Command("download-status", "Show one download task")
	dlStatusTask = dlStatusCmd.Arg("task-id", "Download task ID").Required().String()
	downloadsCmd = app.Command("downloads", "List download tasks")

	// subscribe command
	subscribeCmd = app.Command("subscribe", "Subscribe to notifications")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	var err error
	switch command {
	case playCmd.FullCommand():
		err = printState(client.PlaySingle(ctx, apiconnect.TrackRef{SongID: *playSong}))
	case addCmd.FullCommand():
		err = printState(client.AddToQueue(ctx, apiconnect.TrackRef{SongID: *addSong}))
	case loadCmd.FullCommand():
		err = load(ctx, client, *loadKind, *loadID, *loadPlay)
	case nextCmd.FullCommand():
		err = printState(client.PlayNext(ctx))
	case prevCmd.FullCommand():
		err = printState(client.PlayPrev(ctx))
	case toggleCmd.FullCommand():
		err = printState(client.TogglePlay(ctx))
	case pauseCmd.FullCommand():
		err = printState(client.Pause(ctx))
	case modeCmd.FullCommand():
		err = printState(client.ToggleMode(ctx, *modeName))
	case seekCmd.FullCommand():
		err = printState(client.Seek(ctx, seekPos.Milliseconds()))
	case queueCmd.FullCommand():
		err = showQueue(ctx, client)
	case removeCmd.FullCommand():
		err = printState(client.RemoveFromQueue(ctx, *removeIndex))
	case clearCmd.FullCommand():
		err = printState(client.ClearQueue(ctx))
	case searchCmd.FullCommand():
		err = search(ctx, client, *searchKind, *searchQuery, *searchPage)
	case favCmd.FullCommand():
		err = toggleFavorite(ctx, client, *favSong)
	case isFavCmd.FullCommand():
		err = isFavorite(ctx, client, *isFavID)
	case favsCmd.FullCommand():
		err = listFavorites(ctx, client, *favsKind)
	case playFavsCmd.FullCommand():
		err = printState(client.PlayFavorites(ctx))
	case downloadCmd.FullCommand():
		err = download(ctx, client, *downloadSong, *downloadWait)
	case dlStatusCmd.FullCommand():
		err = downloadStatus(ctx, client, *dlStatusTask)
	case downloadsCmd.FullCommand():
		err = listDownloads(ctx, client)
	case subscribeCmd.FullCommand():
		err = subscribe(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func load(ctx context.Context, client *apiconnect.Client, kind, id string, play bool) error {
	resp, err := client.LoadEntity(ctx, id, kind)
	if err != nil {
		return err
	}
	e := resp.Entity
	fmt.Printf("Loaded %s: %s", e.Kind, e.Title)
	if e.Subtitle != "" {
		fmt.Printf(" - %s", e.Subtitle)
	}
	fmt.Printf(" (%d tracks)\n", e.TrackCount)
	for i, t := range e.Tracks {
		fmt.Printf("  %3d. %s\n", i, formatTrack(t))
	}
	if !play || len(e.Tracks) == 0 {
		return nil
	}
	return printState(client.PlayQueue(ctx, apiconnect.PlayQueueRequest{Tracks: e.Tracks}))
}

func showQueue(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.GetState(ctx)
	if err != nil {
		return err
	}
	printStateInfo(resp.State)
	if len(resp.Queue) == 0 {
		fmt.Println("\nQueue is empty")
		return nil
	}
	fmt.Printf("\nQueue (%d):\n", len(resp.Queue))
	for i, t := range resp.Queue {
		marker := "  "
		if i == resp.State.CurrentIndex {
			marker = "▶ "
		}
		fmt.Printf("%s%3d. %s\n", marker, i, formatTrack(t))
	}
	return nil
}

func search(ctx context.Context, client *apiconnect.Client, kind, query string, page int) error {
	resp, err := client.Search(ctx, apiconnect.SearchRequest{Kind: kind, Query: query, Page: page})
	if err != nil {
		return err
	}
	fmt.Printf("%s results for %q: %s total\n", resp.Kind, query, humanize.Comma(int64(resp.Total)))
	for _, t := range resp.Tracks {
		fmt.Printf("  %-12s %s\n", t.ID, formatTrack(t))
	}
	for _, e := range resp.Entities {
		fmt.Printf("  %-12s %s", e.ID, e.Title)
		if e.Subtitle != "" {
			fmt.Printf(" - %s", e.Subtitle)
		}
		fmt.Println()
	}
	return nil
}

func toggleFavorite(ctx context.Context, client *apiconnect.Client, songID string) error {
	req := apiconnect.ToggleFavoriteRequest{SongID: songID}
	title := songID
	if songID == "" {
		state, err := client.GetState(ctx)
		if err != nil {
			return err
		}
		t := state.State.CurrentTrack
		if t == nil {
			return fmt.Errorf("no current track")
		}
		title = t.Title
		req.Item = apiconnect.Favorite{
			ID:          t.ID,
			Kind:        "song",
			Title:       t.Title,
			Subtitle:    t.Subtitle,
			ArtworkURI:  t.ArtworkURI,
			PlaybackURI: t.PlaybackURI,
			DurationSec: t.DurationSec,
		}
	}

	resp, err := client.ToggleFavorite(ctx, req)
	if err != nil {
		return err
	}
	if resp.Favorite {
		fmt.Printf("♥ Added to favorites: %s\n", title)
	} else {
		fmt.Printf("Removed from favorites: %s\n", title)
	}
	return nil
}

func isFavorite(ctx context.Context, client *apiconnect.Client, id string) error {
	title := id
	if id == "" {
		state, err := client.GetState(ctx)
		if err != nil {
			return err
		}
		if state.State.CurrentTrack == nil {
			return fmt.Errorf("no current track")
		}
		id = state.State.CurrentTrack.ID
		title = state.State.CurrentTrack.Title
	}

	resp, err := client.IsFavorite(ctx, id)
	if err != nil {
		return err
	}
	if resp.Favorite {
		fmt.Printf("♥ %s is a favorite\n", title)
	} else {
		fmt.Printf("%s is not a favorite\n", title)
	}
	return nil
}

func listFavorites(ctx context.Context, client *apiconnect.Client, kind string) error {
	resp, err := client.ListFavorites(ctx, kind)
	if err != nil {
		return err
	}
	if len(resp.Items) == 0 {
		fmt.Println("No favorites")
		return nil
	}
	fmt.Printf("%-12s %-9s %-40s %s\n", "ID", "KIND", "TITLE", "ADDED")
	for _, item := range resp.Items {
		fmt.Printf("%-12s %-9s %-40s %s\n", item.ID, item.Kind, item.Title, humanize.Time(item.AddedAt))
	}
	return nil
}

func download(ctx context.Context, client *apiconnect.Client, songID string, wait bool) error {
	resp, err := client.Download(ctx, apiconnect.TrackRef{SongID: songID})
	if err != nil {
		return err
	}
	fmt.Printf("Download queued: task=%s\n", resp.TaskID)
	if !wait {
		return nil
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		task, err := client.GetDownload(ctx, resp.TaskID)
		if err != nil {
			return err
		}
		if task.Status == "completed" || task.Status == "failed" {
			printDownloadTask(*task)
			return nil
		}
		<-ticker.C
	}
}

func downloadStatus(ctx context.Context, client *apiconnect.Client, taskID string) error {
	task, err := client.GetDownload(ctx, taskID)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s %-10s %-9s %s\n", "TASK", "STATUS", "SIZE", "TITLE")
	printDownloadTask(*task)
	return nil
}

func listDownloads(ctx context.Context, client *apiconnect.Client) error {
	resp, err := client.ListDownloads(ctx)
	if err != nil {
		return err
	}
	if len(resp.Tasks) == 0 {
		fmt.Println("No downloads")
		return nil
	}
	fmt.Printf("%-36s %-10s %-9s %s\n", "TASK", "STATUS", "SIZE", "TITLE")
	for _, t := range resp.Tasks {
		printDownloadTask(t)
	}
	return nil
}

func printDownloadTask(t apiconnect.DownloadTask) {
	fmt.Printf("%-36s %-10s %-9s %s\n", t.ID, t.Status, humanize.IBytes(uint64(t.Bytes)), t.Title)
	if t.Path != "" {
		fmt.Printf("  → %s\n", t.Path)
	}
	if t.Error != "" {
		fmt.Printf("  ! %s\n", t.Error)
	}
}

func subscribe(ctx context.Context, client *apiconnect.Client) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := client.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println("Subscribed to notifications. Press Ctrl+C to exit.")

	for stream.Receive() {
		printNotification(stream.Msg())
	}

	if ctx.Err() != nil {
		fmt.Println("\nUnsubscribing...")
		return nil
	}
	return stream.Err()
}

func printNotification(n *apiconnect.Notification) {
	// Position ticks are frequent; keep them to one line
	if n.Type == "position_changed" {
		fmt.Printf("\r  %s / %s", formatMs(n.State.PositionMs), formatMs(n.State.DurationMs))
		return
	}

	fmt.Printf("\n[Sequence: %d] === %s === %s\n", n.SequenceNo, n.Type, n.Timestamp.Format(time.TimeOnly))
	if n.Track != nil {
		fmt.Printf("  Track: %s\n", formatTrack(*n.Track))
	}
	if n.Reason != "" {
		fmt.Printf("  Reason: %s\n", n.Reason)
	}
	printStateInfo(n.State)
	if n.Queue != nil {
		fmt.Printf("  Queue: %d tracks\n", len(n.Queue))
	}
}

func printState(resp *apiconnect.StateResponse, err error) error {
	if err != nil {
		return err
	}
	if resp.Warning != "" {
		fmt.Printf("Warning: %s\n", resp.Warning)
	}
	printStateInfo(resp.State)
	return nil
}

func printStateInfo(s apiconnect.State) {
	fmt.Printf("  Status: %s  Mode: %s  Queue: %d\n", formatStatus(s.Status), s.Mode, s.QueueLength)
	if s.CurrentTrack != nil {
		fmt.Printf("  Now: [%d] %s  %s / %s\n", s.CurrentIndex, formatTrack(*s.CurrentTrack),
			formatMs(s.PositionMs), formatMs(s.DurationMs))
	}
	if s.ActiveEntity != nil {
		fmt.Printf("  From: %s %s\n", s.ActiveEntity.Kind, s.ActiveEntity.Title)
	}
}

func formatStatus(status string) string {
	switch status {
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "idle":
		return "⏹  Idle"
	default:
		return "❓ Unknown"
	}
}

func formatTrack(t apiconnect.Track) string {
	s := t.Title
	if t.Subtitle != "" {
		s += " - " + t.Subtitle
	}
	if t.DurationSec > 0 {
		s += " (" + formatMs(t.DurationSec*1000) + ")"
	}
	return s
}

func formatMs(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
