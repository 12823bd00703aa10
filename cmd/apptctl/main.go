// Command apptctl is a command line client for the appointment booking API.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"appointment-booking-api/internal/model"
	"appointment-booking-api/pkg/client"
)

type app struct {
	c       *client.Client
	jsonOut bool
}

func main() {
	server := flag.String("server", env("APPTCTL_SERVER", "http://localhost:8080"), "API base URL")
	sessionFile := flag.String("session", defaultSessionPath(), "session file")
	jsonOut := flag.Bool("json", false, "print raw JSON")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	sess, err := client.LoadSession(*sessionFile)
	if err != nil {
		fatalf("%v", err)
	}
	a := &app{c: client.New(*server, sess), jsonOut: *jsonOut}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		err = a.login(ctx, rest)
	case "logout":
		err = a.c.Logout(ctx)
		if err == nil {
			fmt.Println("logged out")
		}
	case "whoami":
		err = a.whoami(ctx)
	case "branches":
		err = a.branches(ctx)
	case "list", "pending":
		err = a.list(ctx, cmd == "pending", rest)
	case "show":
		err = a.show(ctx, rest)
	case "audits":
		err = a.audits(ctx, rest)
	case "create":
		err = a.create(ctx, rest)
	case "approve":
		err = a.approve(ctx, rest)
	case "reject":
		err = a.reject(ctx, rest)
	case "status":
		err = a.status(ctx, rest)
	default:
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fatalf("%s: %v", cmd, err)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("u", "", "username")
	pass := fs.String("p", os.Getenv("APPTCTL_PASSWORD"), "password (or APPTCTL_PASSWORD)")
	fs.Parse(args)
	if *user == "" || *pass == "" {
		return fmt.Errorf("-u and -p are required")
	}
	u, err := a.c.Login(ctx, *user, *pass)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", u.Username, u.Role)
	return nil
}

func (a *app) whoami(ctx context.Context) error {
	u, err := a.c.Me(ctx)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(u)
	}
	fmt.Printf("%d\t%s\t%s\t%s\n", u.ID, u.Username, u.FullName, u.Role)
	return nil
}

func (a *app) branches(ctx context.Context) error {
	out, err := a.c.Branches(ctx)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(out)
	}
	tw := table("ID", "NAME", "LOCATION")
	for _, b := range out {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", b.ID, b.Name, b.Location)
	}
	return tw.Flush()
}

func (a *app) list(ctx context.Context, pending bool, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	status := fs.String("status", "", "Draft, Pending, Approved or Rejected")
	branch := fs.Int64("branch", 0, "branch id")
	mine := fs.Bool("mine", false, "only my appointments")
	from := fs.String("from", "", "start date YYYY-MM-DD")
	to := fs.String("to", "", "end date YYYY-MM-DD")
	search := fs.String("search", "", "text in title or requester")
	sortBy := fs.String("sort", "", "date, status or requestedby")
	desc := fs.Bool("desc", false, "sort descending")
	page := fs.Int("page", 1, "page number")
	size := fs.Int("size", model.DefaultPageSize, "page size")
	fs.Parse(args)

	o := client.ListOptions{
		BranchID:       *branch,
		SearchText:     *search,
		SortBy:         *sortBy,
		SortDescending: *desc,
		PageNumber:     *page,
		PageSize:       *size,
	}
	if *status != "" {
		s, err := model.ParseStatus(*status)
		if err != nil {
			return err
		}
		o.Status = &s
	}
	if *mine {
		u := a.c.Session().User()
		if u == nil {
			return fmt.Errorf("-mine needs a login")
		}
		o.RequestedByID = u.ID
	}
	var err error
	if o.StartDate, err = optDate(*from); err != nil {
		return err
	}
	if o.EndDate, err = optDate(*to); err != nil {
		return err
	}

	var p *model.Page[model.Appointment]
	if pending {
		p, err = a.c.PendingAppointments(ctx, o)
	} else {
		p, err = a.c.ListAppointments(ctx, o)
	}
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(p)
	}
	tw := table("ID", "DATE", "TIME", "STATUS", "BRANCH", "REQUESTER", "TITLE")
	for _, ap := range p.Items {
		fmt.Fprintf(tw, "%d\t%s\t%s-%s\t%s\t%s\t%s\t%s\n",
			ap.ID, ap.Date, ap.StartTime, ap.EndTime, ap.Status, ap.BranchName, ap.RequestedBy, ap.Title)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("page %d/%d, %d total\n", p.PageNumber, p.TotalPages, p.TotalCount)
	return nil
}

func (a *app) show(ctx context.Context, args []string) error {
	id, err := argID(args)
	if err != nil {
		return err
	}
	ap, err := a.c.Appointment(ctx, id)
	if err != nil {
		return err
	}
	return a.printAppointment(ap)
}

func (a *app) audits(ctx context.Context, args []string) error {
	id, err := argID(args)
	if err != nil {
		return err
	}
	out, err := a.c.Audits(ctx, id)
	if err != nil {
		return err
	}
	if a.jsonOut {
		return printJSON(out)
	}
	tw := table("AT", "FROM", "TO", "BY", "COMMENT")
	for _, au := range out {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			au.ActionAt.Local().Format(time.DateTime), au.FromStatus, au.ToStatus, au.ActionBy, au.Comment)
	}
	return tw.Flush()
}

func (a *app) create(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	branch := fs.Int64("branch", 0, "branch id")
	title := fs.String("title", "", "title")
	date := fs.String("date", "", "date YYYY-MM-DD")
	start := fs.String("start", "", "start time HH:MM")
	end := fs.String("end", "", "end time HH:MM")
	desc := fs.String("desc", "", "description")
	name := fs.String("name", "", "requester name (defaults to your full name)")
	fs.Parse(args)

	req := client.AppointmentRequest{BranchID: *branch, Title: *title, Description: *desc, RequestedBy: *name}
	if req.RequestedBy == "" {
		if u := a.c.Session().User(); u != nil {
			req.RequestedBy = u.FullName
		}
	}
	var err error
	if req.Date, err = model.ParseDate(*date); err != nil {
		return fmt.Errorf("-date: %w", err)
	}
	if req.StartTime, err = model.ParseTimeOfDay(*start); err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	if req.EndTime, err = model.ParseTimeOfDay(*end); err != nil {
		return fmt.Errorf("-end: %w", err)
	}
	ap, err := a.c.CreateAppointment(ctx, req)
	if err != nil {
		return err
	}
	return a.printAppointment(ap)
}

func (a *app) approve(ctx context.Context, args []string) error {
	id, err := argID(args)
	if err != nil {
		return err
	}
	ap, err := a.c.Approve(ctx, id)
	if err != nil {
		return err
	}
	return a.printAppointment(ap)
}

func (a *app) reject(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reject", flag.ExitOnError)
	comment := fs.String("comment", "", "reason (required)")
	fs.Parse(args)
	id, err := argID(fs.Args())
	if err != nil {
		return err
	}
	ap, err := a.c.Reject(ctx, id, *comment)
	if err != nil {
		return err
	}
	return a.printAppointment(ap)
}

func (a *app) status(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	to := fs.String("to", "", "target status")
	comment := fs.String("comment", "", "audit comment")
	fs.Parse(args)
	id, err := argID(fs.Args())
	if err != nil {
		return err
	}
	s, err := model.ParseStatus(*to)
	if err != nil {
		return err
	}
	ap, err := a.c.UpdateStatus(ctx, id, s, *comment)
	if err != nil {
		return err
	}
	return a.printAppointment(ap)
}

func (a *app) printAppointment(ap *model.Appointment) error {
	if a.jsonOut {
		return printJSON(ap)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", ap.ID)
	fmt.Fprintf(tw, "title\t%s\n", ap.Title)
	fmt.Fprintf(tw, "status\t%s\n", ap.Status)
	fmt.Fprintf(tw, "when\t%s %s-%s\n", ap.Date, ap.StartTime, ap.EndTime)
	fmt.Fprintf(tw, "branch\t%s (%s)\n", ap.BranchName, ap.BranchLocation)
	fmt.Fprintf(tw, "requester\t%s\n", ap.RequestedBy)
	if ap.Description != "" {
		fmt.Fprintf(tw, "description\t%s\n", ap.Description)
	}
	if ap.AdminComment != "" {
		fmt.Fprintf(tw, "admin comment\t%s\n", ap.AdminComment)
	}
	fmt.Fprintf(tw, "version\t%d\n", ap.Version)
	return tw.Flush()
}

func table(cols ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, c)
	}
	fmt.Fprintln(tw)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func argID(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one appointment id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", args[0])
	}
	return id, nil
}

func optDate(s string) (*model.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := model.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "apptctl", "session.json")
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: apptctl [-server URL] [-session FILE] [-json] <command> [flags]

Commands:
  login -u USER -p PASS     Sign in and store the session
  logout                    Revoke refresh tokens and forget the session
  whoami                    Show the signed-in user
  branches                  List branches
  list [filters]            List appointments (-status -branch -mine -from -to -search -sort -desc -page -size)
  pending [filters]         List pending appointments
  show ID                   Show one appointment
  audits ID                 Show the status history of an appointment
  create [flags]            Book (-branch -title -date -start -end -desc -name)
  approve ID                Approve a pending appointment (admin)
  reject -comment TEXT ID   Reject a pending appointment (admin)
  status -to STATUS ID      Force a status (admin)

Environment:
  APPTCTL_SERVER     API base URL (default http://localhost:8080)
  APPTCTL_PASSWORD   Password for login when -p is omitted`)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "apptctl: "+format+"\n", args...)
	os.Exit(1)
}
