package status

import "html/template"

type statusTemplateEntry struct {
	Time string
	Op   string
	Addr string
	Data string
	Err  string
}

type statusTemplateData struct {
	Version     string
	BusStatus   string
	Devices     []string
	DeviceCount int
	Trace       []statusTemplateEntry
	Log         string

	IsError bool
	Error   string

	CSRFField template.HTML
}

const templateString = `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, shrink-to-fit=no">
  <title>twid status</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", "Roboto", "Helvetica Neue", Arial, sans-serif;
    }

    h1 {
      font-size: 36px;
    }

    p {
      color: #858585;
    }

    #container {
      width: 100%;
    }

    .error {
      border: 1px solid orangered;
      border-radius: 4px;
      min-width: 320px;
      max-width: 500px;
      min-height: 33px;
      margin: 20px auto;
      position: relative;
      color: darkred;
      padding-top: 13px;
    }

    .item {
      border: 1px solid lightgray;
      border-radius: 4px;
      min-width: 320px;
      max-width: 500px;
      margin: 20px auto;
      position: relative;
      padding: 10px;
    }

    .inner-container {
      max-width: 1024px;
      margin: 0 auto;
      text-align: center;
      border-radius: 4px;
    }

    .badge {
      display: inline-block;
      padding: 6px 10px 6px 10px;
      border: 1px solid #01B757;
      border-radius: 4px;
      color: #01B757;
    }

    .heading {
      margin-bottom: 40px;
    }

    .space-top {
      margin-top: 34px;
    }

    .btn-primary {
      display: inline-block;
      padding: 10px 40px 10px 40px;
      background-color: #01B757;
      color: white;
      border-radius: 4px;
      border: none;
      font-size: 14px;
      cursor: pointer;
    }

    .btn-primary:hover {
      background-color: #00A24C;
    }

    table {
      margin: 0 auto;
      border-collapse: collapse;
      font-size: 12px;
      font-family: monospace;
    }

    td, th {
      border: 1px solid lightgray;
      padding: 3px 8px;
      text-align: left;
    }

    textarea{
      max-width: 700px;
    }
  </style>
</head>

<body>
  <div id="container">
    <div class="inner-container">
      <div class="heading">
        <h1>twid status</h1>
        <span class="badge">Version: {{.Version}}</span>
        <span class="badge">Bus status: {{.BusStatus}}</span>
      </div>

      <p>Devices on the bus: {{.DeviceCount}}</p>

      {{if .IsError}}
        <div class="error">
          <b>Error:</b> {{.Error}}
        </div>
      {{end}}

      {{range .Devices}}
      <div class="item">
        <b>{{.}}</b>
      </div>
      {{end}}

      {{if .Trace}}
      <div class="space-top">
        <p>Recent transactions (latest first)</p>
        <table>
          <tr><th>Time</th><th>Op</th><th>Addr</th><th>Data</th><th>Error</th></tr>
          {{range .Trace}}
          <tr><td>{{.Time}}</td><td>{{.Op}}</td><td>{{.Addr}}</td><td>{{.Data}}</td><td>{{.Err}}</td></tr>
          {{end}}
        </table>
      </div>
      {{end}}

      <div class="space-top">
        <p>Console Log</p>
        <textarea rows="25" cols="150" id="log">
{{.Log}}
        </textarea>
        <form action="/status/log.gz" method="POST">
          {{.CSRFField}}
          <button type="submit" class="btn-primary">Download detailed log</button>
        </form>
      </div>

      <div class="space-top">
        <p>You may need to reload the page after connecting / disconnecting</p>
        <a href="#" onClick="location.href=location.href">
          <div class="btn-primary">Refresh page</div>
        </a>
      </div>
    </div>
  </div>
</body>
</html>
`

var statusTemplate = template.Must(template.New("status").Parse(templateString))
