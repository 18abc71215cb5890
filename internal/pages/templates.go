package pages

import "html/template"

var schoolTemplate = template.Must(template.New("school").Parse(`<!DOCTYPE html>
<html lang="id">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <meta http-equiv="X-Content-Type-Options" content="nosniff">
  <meta http-equiv="Referrer-Policy" content="strict-origin-when-cross-origin">
  <title>{{.School.Nama}}</title>
  {{- if .Canonical}}
  <link rel="canonical" href="{{.Canonical}}">
  {{- end}}
  <link rel="stylesheet" href="/styles.css">
  <script type="application/ld+json">{{.JSONLD}}</script>
</head>
<body>
  <a href="#main-content" class="skip-link">Langsung ke konten utama</a>
  <header role="banner">
    <nav aria-label="Navigasi utama">
      <a href="/index.html">Beranda</a>
      <span aria-hidden="true"> / </span>
      <span aria-current="page">{{.School.Nama}}</span>
    </nav>
  </header>

  <main id="main-content" role="main">
    <article aria-labelledby="school-name">
      <h1 id="school-name">{{.School.Nama}}</h1>
      <dl class="school-details-list">
        <div class="details-group">
          <dt>NPSN</dt>
          <dd>{{.School.NPSN}}</dd>
          <dt>Jenjang</dt>
          <dd><span class="badge badge-education">{{.School.BentukPendidikan}}</span></dd>
          <dt>Status</dt>
          <dd><span class="badge badge-status">{{.School.StatusLabel}}</span></dd>
        </div>
        <div class="details-group">
          <dt>Alamat</dt>
          <dd>{{.School.Alamat}}</dd>
          {{- if .School.Kelurahan}}
          <dt>Kelurahan</dt>
          <dd>{{.School.Kelurahan}}</dd>
          {{- end}}
          <dt>Kecamatan</dt>
          <dd>{{.School.Kecamatan}}</dd>
          <dt>Kabupaten/Kota</dt>
          <dd>{{.School.KabKota}}</dd>
          <dt>Provinsi</dt>
          <dd>{{.School.Provinsi}}</dd>
          {{- if .School.HasCoordinates}}
          <dt>Koordinat</dt>
          <dd>{{.School.Lat}}, {{.School.Lon}}</dd>
          {{- end}}
        </div>
      </dl>
    </article>
  </main>

  <footer role="contentinfo">
    <p>&copy; {{.Year}} Sekolah PSEO. Data sekolah berasal dari Dapodik.</p>
  </footer>
</body>
</html>
`))

var homepageTemplate = template.Must(template.New("homepage").Parse(`<!DOCTYPE html>
<html lang="id">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>Direktori Sekolah Indonesia</title>
  <link rel="stylesheet" href="/styles.css">
</head>
<body>
  <a href="#main-content" class="skip-link">Langsung ke konten utama</a>
  <header role="banner">
    <h1>Direktori Sekolah Indonesia</h1>
    <p>{{.Total}} sekolah di {{len .Provinces}} provinsi</p>
  </header>

  <main id="main-content" role="main">
    <h2>Provinsi</h2>
    <ul class="province-list">
      {{- range .Provinces}}
      <li>
        <a href="/provinsi/{{.Slug}}/" class="province-link">
          <span class="province-name">{{.Name}}</span>
          <span class="province-count">{{.Count}} sekolah</span>
        </a>
      </li>
      {{- end}}
    </ul>
  </main>

  <footer role="contentinfo">
    <p>&copy; {{.Year}} Sekolah PSEO. Data sekolah berasal dari Dapodik.</p>
  </footer>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="id">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1.0" />
  <title>{{.Title}}</title>
  {{- if .Canonical}}
  <link rel="canonical" href="{{.Canonical}}">
  {{- end}}
  <link rel="stylesheet" href="/styles.css">
</head>
<body>
  <a href="#main-content" class="skip-link">Langsung ke konten utama</a>
  <header role="banner">
    <nav aria-label="Navigasi utama">
      {{- range $i, $c := .Crumbs}}
      {{- if $i}}
      <span aria-hidden="true"> / </span>
      {{- end}}
      {{- if $c.Href}}
      <a href="{{$c.Href}}">{{$c.Name}}</a>
      {{- else}}
      <span aria-current="page">{{$c.Name}}</span>
      {{- end}}
      {{- end}}
    </nav>
    <h1>{{.Title}}</h1>
  </header>

  <main id="main-content" role="main">
    <h2>{{.Heading}}</h2>
    <ul class="province-list">
      {{- range .Entries}}
      <li>
        <a href="{{.Href}}" class="province-link">
          <span class="province-name">{{.Name}}</span>
          <span class="province-count">{{.Detail}}</span>
        </a>
      </li>
      {{- end}}
    </ul>
  </main>

  <footer role="contentinfo">
    <p>&copy; {{.Year}} Sekolah PSEO. Data sekolah berasal dari Dapodik.</p>
  </footer>
</body>
</html>
`))
